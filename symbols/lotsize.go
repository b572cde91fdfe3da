package symbols

import (
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"stockmesh/logger"
)

// LotSizeManager 印度期货期权手数管理器
//
// 衍生品必须按手数的整数倍下单，股票手数为1。
type LotSizeManager struct {
	mu       sync.RWMutex
	lotSizes map[string]int
}

// defaultLotSizes 常见指数的默认手数（2024年标准）
var defaultLotSizes = map[string]int{
	"NIFTY":      25,
	"BANKNIFTY":  15,
	"FINNIFTY":   25,
	"MIDCPNIFTY": 50,
	"NIFTYIT":    25,
	"SENSEX":     10,
	"BANKEX":     15,
}

var lotExpiryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{1,2}[A-Z]{3}\d{2,4}$`), // 25DEC24
	regexp.MustCompile(`\d{4}[A-Z]{3}\d{1,2}$`),   // 2024DEC25
	regexp.MustCompile(`\d{4}[A-Z]{3}$`),          // 2024DEC（行权价剥离后的残留）
	regexp.MustCompile(`\d{1,2}[A-Z]{3}$`),        // 25DEC（行权价剥离后的残留）
	regexp.MustCompile(`[A-Z]{3}\d{2}$`),          // DEC24
}

// NewLotSizeManager 创建手数管理器，masterFile 为 NSE 合约主档 CSV（可为空）
func NewLotSizeManager(masterFile string) *LotSizeManager {
	m := &LotSizeManager{
		lotSizes: make(map[string]int, len(defaultLotSizes)),
	}
	for k, v := range defaultLotSizes {
		m.lotSizes[k] = v
	}

	if masterFile != "" {
		if err := m.LoadMasterFile(masterFile); err != nil {
			logger.Warn("加载合约主档失败: %v", err)
		}
	}

	logger.Info("手数管理器初始化完成, 共 %d 个品种", len(m.lotSizes))
	return m
}

// LoadMasterFile 从 NSE 合约主档 CSV 加载手数
//
// 需要 symbol/SYMBOL 与 lot_size/LOT_SIZE 列。
func (m *LotSizeManager) LoadMasterFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开合约主档失败: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("解析合约主档失败: %w", err)
	}
	if len(records) < 2 {
		return fmt.Errorf("合约主档为空: %s", path)
	}

	// 定位列
	symbolCol, lotCol := -1, -1
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "symbol":
			symbolCol = i
		case "lot_size":
			lotCol = i
		}
	}
	if symbolCol < 0 || lotCol < 0 {
		return fmt.Errorf("合约主档缺少 symbol 或 lot_size 列: %s", path)
	}

	count := 0
	m.mu.Lock()
	for _, row := range records[1:] {
		if symbolCol >= len(row) || lotCol >= len(row) {
			continue
		}
		symbol := strings.TrimSpace(row[symbolCol])
		lotSize, err := strconv.Atoi(strings.TrimSpace(row[lotCol]))
		if symbol == "" || err != nil || lotSize <= 0 {
			continue
		}
		m.lotSizes[symbol] = lotSize
		count++
	}
	m.mu.Unlock()

	logger.Info("从合约主档加载了 %d 条手数: %s", count, path)
	return nil
}

// GetLotSize 获取符号的手数
//
// 股票返回1；衍生品查不到手数时返回1并告警。
func (m *LotSizeManager) GetLotSize(symbol string) int {
	underlying := ExtractUnderlying(symbol)

	m.mu.RLock()
	lotSize, ok := m.lotSizes[underlying]
	if !ok {
		// 尝试去掉 -EQ 后缀
		lotSize, ok = m.lotSizes[strings.ReplaceAll(underlying, "-EQ", "")]
	}
	m.mu.RUnlock()
	if ok {
		return lotSize
	}

	if ClassifyInstrument(symbol).IsDerivative() {
		logger.Warn("未找到 %s 的手数, 使用默认值 1", symbol)
	}
	return 1
}

// SetLotSize 设置某标的的手数
func (m *LotSizeManager) SetLotSize(underlying string, lotSize int) {
	m.mu.Lock()
	m.lotSizes[underlying] = lotSize
	m.mu.Unlock()
	logger.Debug("设置 %s 手数: %d", underlying, lotSize)
}

// UpdateLotSizes 批量更新手数
func (m *LotSizeManager) UpdateLotSizes(sizes map[string]int) {
	m.mu.Lock()
	for k, v := range sizes {
		m.lotSizes[k] = v
	}
	m.mu.Unlock()
	logger.Info("已更新 %d 条手数", len(sizes))
}

// ValidateQuantity 判断数量是否为手数的整数倍
func (m *LotSizeManager) ValidateQuantity(symbol string, quantity float64) bool {
	lotSize := m.GetLotSize(symbol)
	return int(quantity)%lotSize == 0 && quantity == float64(int(quantity))
}

// AdjustQuantity 将数量调整为手数的整数倍
//
// roundUp 为 true 时向上取整，否则向下取整。
func (m *LotSizeManager) AdjustQuantity(symbol string, quantity float64, roundUp bool) int {
	lotSize := m.GetLotSize(symbol)

	if lotSize == 1 {
		return int(quantity)
	}

	var lots int
	if roundUp {
		lots = int((quantity + float64(lotSize) - 1) / float64(lotSize))
	} else {
		lots = int(quantity / float64(lotSize))
	}

	adjusted := lots * lotSize
	if float64(adjusted) != quantity {
		logger.Info("数量已按手数调整: %s %.2f -> %d (手数: %d)", symbol, quantity, adjusted, lotSize)
	}
	return adjusted
}

// GetLotCount 计算数量对应的手数
func (m *LotSizeManager) GetLotCount(symbol string, quantity float64) int {
	return int(quantity / float64(m.GetLotSize(symbol)))
}

// ExtractUnderlying 从期权/期货符号中提取标的
//
// 如 NIFTY25DEC24500CE -> NIFTY, NIFTYFUT -> NIFTY, RELIANCE/INR -> RELIANCE。
func ExtractUnderlying(symbol string) string {
	// 去掉计价货币
	if idx := strings.Index(symbol, "/"); idx >= 0 {
		symbol = symbol[:idx]
	}

	upper := strings.ToUpper(symbol)

	// 期权: 去掉 CE/PE、行权价、到期日（CE/PE 前必须有行权价数字）
	if optionRe.MatchString(upper) {
		base := symbol[:len(symbol)-2]

		if match := strikeRe.FindStringIndex(base); match != nil {
			base = base[:match[0]]
		}

		for _, pattern := range lotExpiryPatterns {
			if match := pattern.FindStringIndex(base); match != nil {
				base = base[:match[0]]
				break
			}
		}
		return base
	}

	// 期货: FUT 之前的部分
	if idx := strings.Index(upper, "FUT"); idx >= 0 {
		return symbol[:idx]
	}

	return symbol
}
