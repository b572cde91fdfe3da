package symbols

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"stockmesh/logger"
)

// BrokerMapping 单个券商下的符号映射条目
type BrokerMapping struct {
	Symbol   string `json:"symbol"`
	Token    string `json:"token,omitempty"`
	Exchange string `json:"exchange,omitempty"`
}

// Mapper 符号映射器，负责内部格式与各券商格式的双向转换
//
// 内部格式: SYMBOL/QUOTE（如 "RELIANCE/INR", "NIFTY50/INR"）
//
// 券商格式:
// - openalgo: 符号 + 交易所（如 "RELIANCE" on "NSE"）
// - smartapi: 交易符号 + token + 交易所（如 "RELIANCE-EQ", "3045", "NSE"）
// - paperbroker: 与内部格式相同
type Mapper struct {
	mu       sync.RWMutex
	mappings map[string]map[string]BrokerMapping // 内部符号 -> 券商 -> 映射
	reverse  map[string]map[string]string        // 券商 -> 券商符号 -> 内部符号
}

// smartapiSuffixes SmartAPI 各交易所的符号后缀
var smartapiSuffixes = map[string]string{
	"NSE": "-EQ", // 股票
	"BSE": "-EQ",
	"NFO": "", // 期货期权无后缀
	"MCX": "", // 商品
}

// defaultMappings 内置指数符号映射（可被配置文件覆盖）
func defaultMappings() map[string]map[string]BrokerMapping {
	return map[string]map[string]BrokerMapping{
		"NIFTY50": {
			"openalgo":    {Symbol: "NIFTY 50", Exchange: "NSE"},
			"smartapi":    {Symbol: "NIFTY 50", Token: "99926000", Exchange: "NSE"},
			"paperbroker": {Symbol: "NIFTY50"},
		},
		"BANKNIFTY": {
			"openalgo":    {Symbol: "NIFTY BANK", Exchange: "NSE"},
			"smartapi":    {Symbol: "NIFTY BANK", Token: "99926009", Exchange: "NSE"},
			"paperbroker": {Symbol: "BANKNIFTY"},
		},
		"FINNIFTY": {
			"openalgo":    {Symbol: "NIFTY FIN SERVICE", Exchange: "NSE"},
			"smartapi":    {Symbol: "NIFTY FIN SERVICE", Token: "99926037", Exchange: "NSE"},
			"paperbroker": {Symbol: "FINNIFTY"},
		},
		"MIDCPNIFTY": {
			"openalgo":    {Symbol: "NIFTY MID SELECT", Exchange: "NSE"},
			"smartapi":    {Symbol: "NIFTY MID SELECT", Token: "99926074", Exchange: "NSE"},
			"paperbroker": {Symbol: "MIDCPNIFTY"},
		},
	}
}

// NewMapper 创建符号映射器，mappingFile 为空时仅使用内置映射
func NewMapper(mappingFile string) *Mapper {
	m := &Mapper{
		mappings: defaultMappings(),
	}

	if mappingFile != "" {
		if err := m.LoadMappings(mappingFile); err != nil {
			logger.Warn("加载符号映射文件失败: %v", err)
		}
	}

	m.rebuildReverse()
	return m
}

// LoadMappings 从 JSON 文件加载自定义映射（覆盖同名内置映射）
func (m *Mapper) LoadMappings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取符号映射文件失败: %w", err)
	}

	custom := make(map[string]map[string]BrokerMapping)
	if err := json.Unmarshal(data, &custom); err != nil {
		return fmt.Errorf("解析符号映射文件失败: %w", err)
	}

	m.mu.Lock()
	for symbol, brokerMappings := range custom {
		m.mappings[symbol] = brokerMappings
	}
	m.mu.Unlock()

	m.rebuildReverse()
	logger.Info("已加载 %d 条自定义符号映射: %s", len(custom), path)
	return nil
}

// SaveMappings 保存当前映射到 JSON 文件
func (m *Mapper) SaveMappings(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.mappings, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("序列化符号映射失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入符号映射文件失败: %w", err)
	}

	logger.Info("符号映射已保存: %s", path)
	return nil
}

// rebuildReverse 重建反向索引（券商符号 -> 内部符号）
func (m *Mapper) rebuildReverse() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reverse = map[string]map[string]string{
		"openalgo":    {},
		"smartapi":    {},
		"paperbroker": {},
	}

	for internal, brokerMappings := range m.mappings {
		for broker, mapping := range brokerMappings {
			if _, ok := m.reverse[broker]; !ok {
				continue
			}
			key := mapping.Symbol
			if key == "" {
				key = internal
			}
			m.reverse[broker][key] = internal
		}
	}
}

// SplitPair 拆分交易对，缺省计价货币为 INR
func SplitPair(pair string) (base, quote string) {
	parts := strings.SplitN(pair, "/", 2)
	base = parts[0]
	quote = "INR"
	if len(parts) > 1 && parts[1] != "" {
		quote = parts[1]
	}
	return base, quote
}

// ToOpenAlgo 转换为 OpenAlgo 格式（符号 + 交易所）
func (m *Mapper) ToOpenAlgo(pair, defaultExchange string) (symbol, exchange string) {
	base, _ := SplitPair(pair)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if mapping, ok := m.lookup(base, "openalgo"); ok {
		symbol = mapping.Symbol
		if symbol == "" {
			symbol = base
		}
		exchange = mapping.Exchange
		if exchange == "" {
			exchange = defaultExchange
		}
		return symbol, exchange
	}

	return base, defaultExchange
}

// ToSmartAPI 转换为 SmartAPI 格式（交易符号 + token + 交易所）
//
// 无映射时按交易所追加后缀（NSE/BSE 为 -EQ），token 返回 "0" 待查。
func (m *Mapper) ToSmartAPI(pair, defaultExchange string) (tradingSymbol, token, exchange string) {
	base, _ := SplitPair(pair)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if mapping, ok := m.lookup(base, "smartapi"); ok {
		tradingSymbol = mapping.Symbol
		if tradingSymbol == "" {
			tradingSymbol = base
		}
		token = mapping.Token
		if token == "" {
			token = "0"
		}
		exchange = mapping.Exchange
		if exchange == "" {
			exchange = defaultExchange
		}
		return tradingSymbol, token, exchange
	}

	suffix, ok := smartapiSuffixes[defaultExchange]
	if !ok {
		suffix = "-EQ"
	}
	return base + suffix, "0", defaultExchange
}

// ToPaperBroker 转换为模拟盘格式（符号 + 计价货币）
func (m *Mapper) ToPaperBroker(pair string) (symbol, quote string) {
	base, quote := SplitPair(pair)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if mapping, ok := m.lookup(base, "paperbroker"); ok && mapping.Symbol != "" {
		return mapping.Symbol, quote
	}
	return base, quote
}

// lookup 无锁查找，调用方持有读锁
func (m *Mapper) lookup(base, broker string) (BrokerMapping, bool) {
	brokerMappings, ok := m.mappings[base]
	if !ok {
		return BrokerMapping{}, false
	}
	mapping, ok := brokerMappings[broker]
	return mapping, ok
}

// FromBroker 将券商符号转换回内部交易对格式
func (m *Mapper) FromBroker(broker, symbol, quoteCurrency string) string {
	if quoteCurrency == "" {
		quoteCurrency = "INR"
	}

	if broker == "smartapi" {
		// 去掉 SmartAPI 后缀
		for _, suffix := range smartapiSuffixes {
			if suffix != "" && strings.HasSuffix(symbol, suffix) {
				symbol = strings.TrimSuffix(symbol, suffix)
				break
			}
		}
	}

	m.mu.RLock()
	if mapped, ok := m.reverse[broker][symbol]; ok {
		symbol = mapped
	}
	m.mu.RUnlock()

	return symbol + "/" + quoteCurrency
}

// AddMapping 添加或更新符号映射
func (m *Mapper) AddMapping(internal, broker string, mapping BrokerMapping) {
	m.mu.Lock()
	if _, ok := m.mappings[internal]; !ok {
		m.mappings[internal] = make(map[string]BrokerMapping)
	}
	m.mappings[internal][broker] = mapping
	m.mu.Unlock()

	m.rebuildReverse()
}
