package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromBytes(t *testing.T) {
	yamlData := `
app:
  current_broker: openalgo
brokers:
  openalgo:
    api_key: test-key
    host: http://127.0.0.1:5000
    exchange: NSE
trading:
  pair_whitelist:
    - RELIANCE/INR
    - NIFTY50/INR
  timeframe: 5m
simulation:
  initial_balance: 500000
  slippage_percent: 0.1
  commission_percent: 0.05
rate_limits:
  openalgo:
    per_second: 10
    per_minute: 300
    min_interval_ms: 50
`
	cfg, err := LoadConfigFromBytes([]byte(yamlData))
	if err != nil {
		t.Fatalf("解析配置失败: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("配置验证失败: %v", err)
	}

	if cfg.App.CurrentBroker != "openalgo" {
		t.Errorf("当前券商错误: 期望 openalgo, 实际 %s", cfg.App.CurrentBroker)
	}
	broker, ok := cfg.Brokers["openalgo"]
	if !ok {
		t.Fatal("缺少 openalgo 券商配置")
	}
	if broker.Host != "http://127.0.0.1:5000" {
		t.Errorf("券商网关地址错误: %s", broker.Host)
	}
	if len(cfg.Trading.PairWhitelist) != 2 {
		t.Errorf("白名单数量错误: 期望 2, 实际 %d", len(cfg.Trading.PairWhitelist))
	}
	if cfg.Simulation.InitialBalance != 500000 {
		t.Errorf("初始资金错误: %.2f", cfg.Simulation.InitialBalance)
	}
	if rl := cfg.RateLimits["openalgo"]; rl.PerSecond != 10 || rl.PerMinute != 300 || rl.MinIntervalMS != 50 {
		t.Errorf("限流配置错误: %+v", rl)
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.App.CurrentBroker = "paperbroker"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("配置验证失败: %v", err)
	}

	if cfg.Trading.Timeframe != "5m" {
		t.Errorf("默认时间周期错误: %s", cfg.Trading.Timeframe)
	}
	if cfg.Simulation.InitialBalance != 100000.0 {
		t.Errorf("默认初始资金错误: %.2f", cfg.Simulation.InitialBalance)
	}
	if cfg.Simulation.SlippagePercent != 0.05 {
		t.Errorf("默认滑点错误: %.4f", cfg.Simulation.SlippagePercent)
	}
	if cfg.Simulation.CommissionPercent != 0.1 {
		t.Errorf("默认手续费错误: %.4f", cfg.Simulation.CommissionPercent)
	}
	if cfg.Symbols.DefaultExchange != "NSE" {
		t.Errorf("默认交易所错误: %s", cfg.Symbols.DefaultExchange)
	}
	if cfg.Journal.Path != "./data/stockmesh.db" {
		t.Errorf("默认流水路径错误: %s", cfg.Journal.Path)
	}
	if cfg.Metrics.Port != 29090 {
		t.Errorf("默认指标端口错误: %d", cfg.Metrics.Port)
	}
}

func TestValidateErrors(t *testing.T) {
	// 缺少当前券商
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("缺少 current_broker 应该验证失败")
	}

	// 不支持的时间周期
	cfg = &Config{}
	cfg.App.CurrentBroker = "paperbroker"
	cfg.Trading.Timeframe = "7m"
	if err := cfg.Validate(); err == nil {
		t.Error("不支持的时间周期应该验证失败")
	}

	// 负初始资金
	cfg = &Config{}
	cfg.App.CurrentBroker = "paperbroker"
	cfg.Simulation.InitialBalance = -1
	if err := cfg.Validate(); err == nil {
		t.Error("负初始资金应该验证失败")
	}

	// 负限流参数
	cfg = &Config{}
	cfg.App.CurrentBroker = "paperbroker"
	cfg.RateLimits = map[string]RateLimitConfig{"zerodha": {PerSecond: -1}}
	if err := cfg.Validate(); err == nil {
		t.Error("负限流参数应该验证失败")
	}
}

func TestDistributedLockDefaults(t *testing.T) {
	cfg := CreateMinimalConfig()
	cfg.DistributedLock.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("配置验证失败: %v", err)
	}
	if cfg.DistributedLock.Type != "redis" {
		t.Errorf("默认锁类型错误: %s", cfg.DistributedLock.Type)
	}
	if cfg.DistributedLock.Prefix != "stockmesh:lock:" {
		t.Errorf("默认锁前缀错误: %s", cfg.DistributedLock.Prefix)
	}
	if cfg.DistributedLock.TTLSeconds != 10 {
		t.Errorf("默认锁过期时间错误: %d", cfg.DistributedLock.TTLSeconds)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	cfg := CreateMinimalConfig()
	cfg.Simulation.InitialBalance = 250000

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("保存配置失败: %v", err)
	}
	defer os.Remove(path)

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if loaded.App.CurrentBroker != "paperbroker" {
		t.Errorf("当前券商错误: %s", loaded.App.CurrentBroker)
	}
	if loaded.Simulation.InitialBalance != 250000 {
		t.Errorf("初始资金错误: %.2f", loaded.Simulation.InitialBalance)
	}
}

func TestIsTimeframeSupported(t *testing.T) {
	for _, tf := range []string{"1m", "5m", "1h", "1d"} {
		if !IsTimeframeSupported(tf) {
			t.Errorf("时间周期 %s 应该被支持", tf)
		}
	}
	for _, tf := range []string{"2m", "45m", "1w", ""} {
		if IsTimeframeSupported(tf) {
			t.Errorf("时间周期 %s 不应该被支持", tf)
		}
	}
}
