package exchange

import (
	"time"

	"stockmesh/config"
	"stockmesh/exchange/binance"
	"stockmesh/exchange/openalgo"
	"stockmesh/exchange/paperbroker"
	"stockmesh/logger"
	"stockmesh/ratelimit"
	"stockmesh/storage"
	"stockmesh/symbols"
)

// limiterFor 按配置构建限流器，未配置时使用券商预设
func limiterFor(cfg *config.Config, broker string) *ratelimit.EndpointLimiter {
	rl, ok := cfg.RateLimits[broker]
	if !ok {
		return ratelimit.NewEndpointLimiter(ratelimit.ForBroker(broker))
	}

	return ratelimit.NewEndpointLimiter(ratelimit.NewLimiter(ratelimit.Options{
		PerSecond:   rl.PerSecond,
		PerMinute:   rl.PerMinute,
		PerHour:     rl.PerHour,
		PerDay:      rl.PerDay,
		MinInterval: time.Duration(rl.MinIntervalMS) * time.Millisecond,
	}))
}

// newPaperBroker 创建模拟盘适配器
func newPaperBroker(cfg *config.Config) (IExchange, error) {
	lots := symbols.NewLotSizeManager(cfg.Symbols.LotMasterFile)

	var journal paperbroker.FillJournal
	if cfg.Journal.Enabled {
		j, err := storage.NewFillJournal(cfg.Journal.Path)
		if err != nil {
			return nil, WrapError(KindConfiguration, "paperbroker", err, "成交流水库初始化失败")
		}
		journal = j
	}

	broker, err := paperbroker.NewPaperBroker(paperbroker.Config{
		InitialBalance:    cfg.Simulation.InitialBalance,
		SlippagePercent:   cfg.Simulation.SlippagePercent,
		CommissionPercent: cfg.Simulation.CommissionPercent,
		BasePrice:         cfg.Simulation.BasePrice,
		DataDir:           cfg.Simulation.DataDir,
	}, lots, journal)
	if err != nil {
		return nil, WrapError(KindConfiguration, "paperbroker", err, "模拟盘初始化失败")
	}

	return &paperBrokerWrapper{
		broker:  broker,
		markets: BuildMarkets(cfg.Trading.PairWhitelist, lots),
	}, nil
}

// newOpenAlgo 创建 OpenAlgo 适配器
func newOpenAlgo(cfg *config.Config) (IExchange, error) {
	brokerCfg, ok := cfg.Brokers["openalgo"]
	if !ok {
		return nil, NewError(KindConfiguration, "openalgo", "openalgo 配置不存在")
	}
	if brokerCfg.APIKey == "" {
		return nil, NewError(KindConfiguration, "openalgo", "openalgo API Key 未配置")
	}

	mapper := symbols.NewMapper(cfg.Symbols.MappingFile)
	lots := symbols.NewLotSizeManager(cfg.Symbols.LotMasterFile)

	defaultExchange := brokerCfg.Exchange
	if defaultExchange == "" {
		defaultExchange = cfg.Symbols.DefaultExchange
	}

	adapter := openalgo.NewAdapter(openalgo.Config{
		APIKey:          brokerCfg.APIKey,
		Host:            brokerCfg.Host,
		DefaultExchange: defaultExchange,
		FixedQty:        brokerCfg.FixedQty,
	}, mapper, lots, limiterFor(cfg, "openalgo"))

	return &openalgoWrapper{
		adapter: adapter,
		markets: BuildMarkets(cfg.Trading.PairWhitelist, lots),
	}, nil
}

// newBinance 创建币安适配器
func newBinance(cfg *config.Config) (IExchange, error) {
	brokerCfg, ok := cfg.Brokers["binance"]
	if !ok {
		return nil, NewError(KindConfiguration, "binance", "binance 配置不存在")
	}

	adapter, err := binance.NewAdapter(brokerCfg.APIKey, brokerCfg.SecretKey, brokerCfg.Testnet)
	if err != nil {
		return nil, WrapError(KindConfiguration, "binance", err, "币安适配器初始化失败")
	}

	return &binanceWrapper{
		adapter: adapter,
		markets: BuildMarkets(cfg.Trading.PairWhitelist, nil),
	}, nil
}

// DefaultRegistry 返回注册了全部内置适配器的注册表
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("paperbroker", newPaperBroker)
	r.Register("openalgo", newOpenAlgo)
	r.Register("binance", newBinance)
	return r
}

// NewExchange 按配置创建当前券商的适配器
func NewExchange(cfg *config.Config) (IExchange, error) {
	name := cfg.App.CurrentBroker
	ex, err := DefaultRegistry().Create(name, cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("✅ [Exchange] 已创建券商适配器: %s", ex.GetName())
	return ex, nil
}
