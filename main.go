package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockmesh/config"
	"stockmesh/exchange"
	"stockmesh/lock"
	"stockmesh/logger"
	"stockmesh/metrics"
	"stockmesh/order"
)

// Version 版本号
var Version = "1.2.0"

// quoteStreamer 支持实时行情推送的适配器实现本接口
type quoteStreamer interface {
	StartQuoteStream(ctx context.Context, pairs []string, callback func(*exchange.Ticker)) error
}

// symbolReloader 支持符号映射热加载的适配器实现本接口
type symbolReloader interface {
	ReloadSymbolMappings(path string) error
}

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-version" || os.Args[1] == "--version") {
		fmt.Printf("StockMesh Broker Gateway\n")
		fmt.Printf("Version: %s\n", Version)
		os.Exit(0)
	}

	logger.Info("🚀 StockMesh 券商接入层启动...")
	logger.Info("📦 版本号: %s", Version)

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	var cfg *config.Config
	var err error
	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
		// 配置文件不存在，创建最小化配置（模拟盘）
		logger.Info("ℹ️ 配置文件不存在，创建最小化配置（模拟盘）")
		cfg = config.CreateMinimalConfig()
		if err := config.SaveConfig(cfg, configPath); err != nil {
			logger.Warn("⚠️ 保存最小化配置失败: %v，将继续运行", err)
		} else {
			logger.Info("✅ 已创建最小化配置文件: %s", configPath)
		}
	} else {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			logger.Fatal("❌ 加载配置失败: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			logger.Fatal("❌ 配置验证失败: %v", err)
		}
	}

	if err := logger.SetTimezone(cfg.System.Timezone); err != nil {
		logger.Warn("⚠️ 加载时区 %s 失败: %v，将使用默认时区", cfg.System.Timezone, err)
	} else {
		logger.Info("✅ 系统时区设置为: %s", cfg.System.Timezone)
	}

	logLevel := logger.ParseLogLevel(cfg.System.LogLevel)
	logger.SetLevel(logLevel)
	logger.Info("日志级别设置为: %s", logLevel.String())

	logger.Info("✅ 配置加载成功: 券商=%s, 交易对数量=%d",
		cfg.App.CurrentBroker, len(cfg.Trading.PairWhitelist))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Prometheus 指标服务
	var metricsServer *metrics.Server
	var systemCollector *metrics.SystemCollector
	if cfg.Metrics.Enabled {
		logger.Info("🔧 正在启动指标服务...")
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		metricsServer.Start()

		systemCollector = metrics.NewSystemCollector(time.Duration(cfg.Metrics.CollectInterval) * time.Second)
		systemCollector.Start()
		logger.Info("✅ 系统指标采集器已启动")
	} else {
		logger.Info("ℹ️ 指标服务未启用")
	}

	// 分布式锁（多实例模式）
	logger.Info("🔧 正在初始化分布式锁...")
	distributedLock, err := lock.NewDistributedLock(cfg)
	if err != nil {
		logger.Fatal("❌ 初始化分布式锁失败: %v", err)
	}
	defer distributedLock.Close()

	if cfg.DistributedLock.Enabled {
		logger.Info("✅ 分布式锁已启用 (类型: %s)", cfg.DistributedLock.Type)
	} else {
		logger.Info("ℹ️ 分布式锁未启用（单机模式）")
	}

	// 券商适配器
	logger.Info("🔧 正在创建券商适配器...")
	ex, err := exchange.NewExchange(cfg)
	if err != nil {
		logger.Fatal("❌ 创建券商适配器失败: %v", err)
	}
	defer ex.Close()

	caps := ex.Capabilities()
	logger.Info("📋 [%s] 能力表: 行情=%v K线=%v 深度=%v 下单=%v 资金=%v 持仓=%v 推送=%v",
		ex.GetName(), caps.FetchTicker, caps.FetchOHLCV, caps.FetchOrderBook,
		caps.CreateOrder, caps.FetchBalance, caps.FetchPositions, caps.WatchQuotes)

	// 下单服务（锁 + 指标）
	orderService := order.NewService(ex, distributedLock, lock.DefaultTTL(cfg))

	// 配置热更新（仅应用日志级别等运行时可变项，切换券商需重启）
	configWatcher, err := config.NewConfigWatcher(configPath)
	if err != nil {
		logger.Warn("⚠️ 创建配置监控器失败: %v，热更新不可用", err)
	} else {
		// 符号映射文件热加载
		if reloader, ok := ex.(symbolReloader); ok && cfg.Symbols.MappingFile != "" {
			err := configWatcher.WatchMappingFile(cfg.Symbols.MappingFile, func(path string) {
				if err := reloader.ReloadSymbolMappings(path); err != nil {
					logger.Warn("⚠️ 重新加载符号映射失败: %v", err)
					return
				}
				logger.Info("✅ 符号映射已热加载: %s", path)
			})
			if err != nil {
				logger.Warn("⚠️ 监控符号映射文件失败: %v", err)
			}
		}
		if err := configWatcher.Start(ctx); err != nil {
			logger.Warn("⚠️ 启动配置监控失败: %v", err)
		} else {
			logger.Info("✅ 配置热更新已启用")
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case newCfg := <-configWatcher.GetUpdateChan():
						if newCfg == nil {
							continue
						}
						newLevel := logger.ParseLogLevel(newCfg.System.LogLevel)
						if newLevel != logger.GetLevel() {
							logger.SetLevel(newLevel)
							logger.Info("✅ 日志级别已更新为: %s", newLevel.String())
						}
						if newCfg.App.CurrentBroker != cfg.App.CurrentBroker {
							logger.Warn("⚠️ 券商切换 (%s -> %s) 需要重启后生效",
								cfg.App.CurrentBroker, newCfg.App.CurrentBroker)
						}
					case watchErr := <-configWatcher.GetErrorChan():
						logger.Warn("⚠️ 配置热更新失败: %v", watchErr)
					}
				}
			}()
		}
		defer configWatcher.Stop()
	}

	// 行情采集：优先 WebSocket 推送，否则轮询
	if len(cfg.Trading.PairWhitelist) > 0 {
		streamer, ok := ex.(quoteStreamer)
		if caps.WatchQuotes && ok {
			logger.Info("📡 [%s] 启动行情推送: %v", ex.GetName(), cfg.Trading.PairWhitelist)
			err := streamer.StartQuoteStream(ctx, cfg.Trading.PairWhitelist, func(t *exchange.Ticker) {
				metrics.RecordTickerPrice(ex.GetName(), t.Pair, t.Last)
			})
			if err != nil {
				logger.Warn("⚠️ 启动行情推送失败: %v，降级为轮询", err)
				go pollQuotes(ctx, ex, cfg.Trading.PairWhitelist)
			}
		} else {
			go pollQuotes(ctx, ex, cfg.Trading.PairWhitelist)
		}
	}

	// 定期同步资金指标
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := orderService.SyncBalanceMetrics(ctx); err != nil {
					logger.Debug("同步资金指标失败: %v", err)
				}
			}
		}
	}()

	logger.Info("✅ 系统初始化完成，程序正在运行中...")
	logger.Info("💡 按 Ctrl+C 退出程序")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("🛑 收到退出信号，开始优雅关闭...")
	cancel()

	if systemCollector != nil {
		systemCollector.Stop()
	}
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("⚠️ 关闭指标服务失败: %v", err)
		}
		shutdownCancel()
	}

	logger.Close()
	logger.Info("✅ 系统已安全退出 StockMesh")
}

// pollQuotes 行情轮询，不支持推送的券商使用
func pollQuotes(ctx context.Context, ex exchange.IExchange, pairs []string) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, pair := range pairs {
				t, err := ex.FetchTicker(ctx, pair)
				if err != nil {
					if exchange.IsRetryable(err) {
						logger.Debug("[%s] 获取行情失败（临时）: %v", pair, err)
					} else {
						logger.Warn("⚠️ [%s] 获取行情失败: %v", pair, err)
					}
					continue
				}
				metrics.RecordTickerPrice(ex.GetName(), pair, t.Last)
			}
		}
	}
}
