package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BrokerConfig 单个券商/交易所配置
type BrokerConfig struct {
	APIKey    string `yaml:"api_key" json:"api_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Host      string `yaml:"host" json:"host"`                     // 券商网关地址（如 OpenAlgo 服务器）
	Exchange  string `yaml:"exchange" json:"exchange"`             // 默认交易所代码（NSE/BSE/NFO）
	Testnet   bool   `yaml:"testnet" json:"testnet"`               // 是否使用测试网（库适配器）
	FixedQty  int    `yaml:"fixed_quantity" json:"fixed_quantity"` // 固定下单股数（0 表示按金额换算）
}

// RateLimitConfig 单个券商的限流策略
type RateLimitConfig struct {
	PerSecond     int `yaml:"per_second" json:"per_second"`
	PerMinute     int `yaml:"per_minute" json:"per_minute"`
	PerHour       int `yaml:"per_hour" json:"per_hour"`
	PerDay        int `yaml:"per_day" json:"per_day"`
	MinIntervalMS int `yaml:"min_interval_ms" json:"min_interval_ms"` // 最小请求间隔（毫秒）
}

// Config 券商接入层配置
type Config struct {
	// 应用配置
	App struct {
		CurrentBroker string `yaml:"current_broker"` // 当前使用的券商
	} `yaml:"app"`

	// 多券商配置
	Brokers map[string]BrokerConfig `yaml:"brokers"`

	Trading struct {
		PairWhitelist []string `yaml:"pair_whitelist"` // 交易对白名单，如 RELIANCE/INR
		Timeframe     string   `yaml:"timeframe"`      // 基础时间周期，如 1m/5m/1h
	} `yaml:"trading"`

	// 模拟盘配置
	Simulation struct {
		InitialBalance    float64 `yaml:"initial_balance"`    // 初始资金（默认100000）
		SlippagePercent   float64 `yaml:"slippage_percent"`   // 滑点百分比（默认0.05）
		CommissionPercent float64 `yaml:"commission_percent"` // 手续费百分比（默认0.1）
		BasePrice         float64 `yaml:"base_price"`         // 随机行情起始价格（0 表示随机）
		DataDir           string  `yaml:"data_dir"`           // 历史 CSV 数据目录
	} `yaml:"simulation"`

	// 各券商的限流策略（未配置的券商使用内置预设）
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`

	// 符号映射与手数配置
	Symbols struct {
		MappingFile     string `yaml:"mapping_file"`     // 自定义符号映射文件（JSON）
		LotMasterFile   string `yaml:"lot_master_file"`  // NSE 合约主档 CSV（手数）
		DefaultExchange string `yaml:"default_exchange"` // 默认交易所代码，默认 NSE
	} `yaml:"symbols"`

	// 模拟盘成交流水（SQLite）
	Journal struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"` // 默认 ./data/stockmesh.db
	} `yaml:"journal"`

	System struct {
		LogLevel string `yaml:"log_level"`
		Timezone string `yaml:"timezone"` // 时区，如 "Asia/Kolkata"
	} `yaml:"system"`

	// Prometheus 指标
	Metrics struct {
		Enabled         bool `yaml:"enabled"`
		Port            int  `yaml:"port"`             // 默认 29090
		CollectInterval int  `yaml:"collect_interval"` // 系统指标采集间隔（秒），默认30
	} `yaml:"metrics"`

	// 分布式锁配置（多实例共用同一券商会话时串行化下单）
	DistributedLock struct {
		Enabled    bool   `yaml:"enabled"`
		Type       string `yaml:"type"`        // 锁类型，目前仅 redis
		Prefix     string `yaml:"prefix"`      // 锁键前缀，默认 "stockmesh:lock:"
		TTLSeconds int    `yaml:"ttl_seconds"` // 锁过期时间（秒），默认10
		Redis      struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size"`
		} `yaml:"redis"`
	} `yaml:"distributed_lock"`
}

// SupportedTimeframes 支持的时间周期
var SupportedTimeframes = []string{"1m", "3m", "5m", "10m", "15m", "30m", "1h", "1d"}

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes 从字节数据加载配置
func LoadConfigFromBytes(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return cfg, nil
}

// SaveConfig 保存配置到文件（先验证）
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

// CreateMinimalConfig 创建最小可用配置（模拟盘）
func CreateMinimalConfig() *Config {
	cfg := &Config{}
	cfg.App.CurrentBroker = "paperbroker"
	cfg.Brokers = map[string]BrokerConfig{
		"paperbroker": {},
	}
	cfg.Trading.PairWhitelist = []string{"RELIANCE/INR", "NIFTY50/INR"}
	cfg.Trading.Timeframe = "5m"
	if err := cfg.Validate(); err != nil {
		// 最小配置必须有效
		panic(fmt.Sprintf("最小配置无效: %v", err))
	}
	return cfg
}

// Validate 验证配置并填充默认值
func (c *Config) Validate() error {
	if c.App.CurrentBroker == "" {
		return fmt.Errorf("未指定当前券商 (app.current_broker)")
	}

	if c.Brokers == nil {
		c.Brokers = make(map[string]BrokerConfig)
	}

	// 时间周期验证
	if c.Trading.Timeframe == "" {
		c.Trading.Timeframe = "5m"
	}
	if !IsTimeframeSupported(c.Trading.Timeframe) {
		return fmt.Errorf("不支持的时间周期: %s（支持: %v）", c.Trading.Timeframe, SupportedTimeframes)
	}

	// 模拟盘默认值
	if c.Simulation.InitialBalance < 0 {
		return fmt.Errorf("初始资金不能为负数: %.2f", c.Simulation.InitialBalance)
	}
	if c.Simulation.InitialBalance == 0 {
		c.Simulation.InitialBalance = 100000.0
	}
	if c.Simulation.SlippagePercent < 0 {
		return fmt.Errorf("滑点百分比不能为负数: %.4f", c.Simulation.SlippagePercent)
	}
	if c.Simulation.SlippagePercent == 0 {
		c.Simulation.SlippagePercent = 0.05
	}
	if c.Simulation.CommissionPercent < 0 {
		return fmt.Errorf("手续费百分比不能为负数: %.4f", c.Simulation.CommissionPercent)
	}
	if c.Simulation.CommissionPercent == 0 {
		c.Simulation.CommissionPercent = 0.1
	}

	// 限流配置验证
	for broker, rl := range c.RateLimits {
		if rl.PerSecond < 0 || rl.PerMinute < 0 || rl.PerHour < 0 || rl.PerDay < 0 || rl.MinIntervalMS < 0 {
			return fmt.Errorf("券商 %s 的限流配置不能为负数", broker)
		}
	}

	// 符号配置默认值
	if c.Symbols.DefaultExchange == "" {
		c.Symbols.DefaultExchange = "NSE"
	}

	// 成交流水默认路径
	if c.Journal.Path == "" {
		c.Journal.Path = "./data/stockmesh.db"
	}

	// 指标默认值
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 29090
	}
	if c.Metrics.CollectInterval == 0 {
		c.Metrics.CollectInterval = 30
	}

	// 分布式锁默认值
	if c.DistributedLock.Enabled {
		if c.DistributedLock.Type == "" {
			c.DistributedLock.Type = "redis"
		}
		if c.DistributedLock.Prefix == "" {
			c.DistributedLock.Prefix = "stockmesh:lock:"
		}
		if c.DistributedLock.TTLSeconds == 0 {
			c.DistributedLock.TTLSeconds = 10
		}
		if c.DistributedLock.Redis.Addr == "" {
			c.DistributedLock.Redis.Addr = "localhost:6379"
		}
		if c.DistributedLock.Redis.PoolSize == 0 {
			c.DistributedLock.Redis.PoolSize = 10
		}
	}

	return nil
}

// IsTimeframeSupported 判断时间周期是否支持
func IsTimeframeSupported(timeframe string) bool {
	for _, tf := range SupportedTimeframes {
		if tf == timeframe {
			return true
		}
	}
	return false
}
