package paperbroker

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockmesh/logger"
	"stockmesh/symbols"
)

// Config 模拟盘配置
type Config struct {
	InitialBalance    float64 // 初始资金，默认100000
	SlippagePercent   float64 // 滑点百分比
	CommissionPercent float64 // 手续费百分比
	BasePrice         float64 // 随机行情起始价格，0 表示随机
	DataDir           string  // 历史 CSV 数据目录，空则使用随机行情
	QuoteCurrency     string  // 计价货币，默认 INR
}

// FillJournal 成交流水存储接口
//
// 模拟盘在每次成交后写入流水，重启时据此恢复持仓。
type FillJournal interface {
	RecordFill(t *Trade) error
	OpenPositions() ([]*Position, error)
}

// PaperBroker 模拟券商
//
// 无网络依赖。加载了历史数据的交易对按最新K线收盘价报价，
// 其余交易对使用有界随机游走模拟价格。所有订单即时全部成交。
type PaperBroker struct {
	cfg     Config
	lots    *symbols.LotSizeManager
	journal FillJournal

	mu         sync.Mutex
	balances   map[string]*Balance
	positions  map[string]*Position
	orders     map[string]*Order
	trades     []Trade
	history    map[string][]Candle // 交易对 -> 1分钟K线
	priceCache map[string]float64
	rng        *rand.Rand
	restored   bool
}

// NewPaperBroker 创建模拟券商
func NewPaperBroker(cfg Config, lots *symbols.LotSizeManager, journal FillJournal) (*PaperBroker, error) {
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 100000.0
	}
	if cfg.QuoteCurrency == "" {
		cfg.QuoteCurrency = "INR"
	}
	if cfg.SlippagePercent < 0 || cfg.CommissionPercent < 0 {
		return nil, fmt.Errorf("滑点和手续费百分比不能为负数")
	}
	if lots == nil {
		lots = symbols.NewLotSizeManager("")
	}

	b := &PaperBroker{
		cfg:     cfg,
		lots:    lots,
		journal: journal,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	b.resetState()

	if cfg.DataDir != "" {
		if err := b.loadHistory(); err != nil {
			logger.Error("加载历史数据失败: %v", err)
		}
	}

	logger.Info("✅ [PaperBroker] 初始化完成, 初始资金 %.2f %s, 滑点 %.3f%%, 手续费 %.3f%%",
		cfg.InitialBalance, cfg.QuoteCurrency, cfg.SlippagePercent, cfg.CommissionPercent)
	return b, nil
}

// resetState 初始化账本，调用方持有锁或在构造期调用
func (b *PaperBroker) resetState() {
	b.balances = map[string]*Balance{
		b.cfg.QuoteCurrency: {
			Free:  b.cfg.InitialBalance,
			Used:  0,
			Total: b.cfg.InitialBalance,
		},
	}
	b.positions = make(map[string]*Position)
	b.orders = make(map[string]*Order)
	b.trades = nil
	b.history = make(map[string][]Candle)
	b.priceCache = make(map[string]float64)
	b.restored = false
}

// loadHistory 加载历史数据并以最新收盘价初始化价格缓存
func (b *PaperBroker) loadHistory() error {
	history, err := LoadHistoryDir(b.cfg.DataDir)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = history
	for pair, candles := range history {
		if len(candles) > 0 {
			b.priceCache[pair] = candles[len(candles)-1].Close
		}
	}
	if len(history) > 0 {
		pairs := make([]string, 0, len(history))
		for pair := range history {
			pairs = append(pairs, pair)
		}
		sort.Strings(pairs)
		logger.Info("✅ [PaperBroker] 历史数据模式, 共 %d 个交易对: %s", len(history), strings.Join(pairs, ", "))
	}
	return nil
}

// GetName 获取券商名称
func (b *PaperBroker) GetName() string {
	return "paperbroker"
}

// resolvePrice 解析交易对当前价格，调用方持有锁
//
// 优先级: 历史数据的最新收盘价 > 上次价格的 ±0.5% 随机游走 > 起始价格。
func (b *PaperBroker) resolvePrice(pair string) float64 {
	if candles, ok := b.history[pair]; ok && len(candles) > 0 {
		price := candles[len(candles)-1].Close
		b.priceCache[pair] = price
		return price
	}

	if last, ok := b.priceCache[pair]; ok {
		movement := (b.rng.Float64()*2 - 1) * 0.005
		price := last * (1 + movement)
		b.priceCache[pair] = price
		return price
	}

	price := b.cfg.BasePrice
	if price <= 0 {
		price = 100 + b.rng.Float64()*900
	}
	b.priceCache[pair] = price
	return price
}

// FetchTicker 获取行情快照
func (b *PaperBroker) FetchTicker(ctx context.Context, pair string) (*Ticker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	last := b.resolvePrice(pair)
	spread := last * 0.001

	ticker := &Ticker{
		Pair:      pair,
		Last:      last,
		Bid:       last - spread/2,
		Ask:       last + spread/2,
		Close:     last,
		Timestamp: time.Now(),
	}

	if candles, ok := b.history[pair]; ok && len(candles) > 0 {
		latest := candles[len(candles)-1]
		ticker.Open = latest.Open
		ticker.High = latest.High
		ticker.Low = latest.Low
		ticker.BaseVolume = latest.Volume
	} else {
		ticker.Open = last
		ticker.High = last * (1 + b.rng.Float64()*0.01)
		ticker.Low = last * (1 - b.rng.Float64()*0.01)
		ticker.BaseVolume = 10000 + b.rng.Float64()*90000
	}

	return ticker, nil
}

// FetchOHLCV 获取K线
//
// 历史数据模式下先重采样到目标周期，再按 since/limit 截取；
// 无历史数据时用随机游走合成K线，每根开盘价衔接上一根收盘价。
func (b *PaperBroker) FetchOHLCV(ctx context.Context, pair, timeframe string, since int64, limit int) ([]Candle, error) {
	duration, ok := timeframeDuration(timeframe)
	if !ok {
		return nil, fmt.Errorf("不支持的时间周期: %s", timeframe)
	}
	if limit <= 0 {
		limit = 100
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if candles, ok := b.history[pair]; ok && len(candles) > 0 {
		resampled := Resample(candles, duration)
		return SliceCandles(resampled, since, limit), nil
	}

	return b.simulateOHLCV(pair, duration, since, limit), nil
}

// simulateOHLCV 合成K线，调用方持有锁
func (b *PaperBroker) simulateOHLCV(pair string, duration time.Duration, since int64, limit int) []Candle {
	var start time.Time
	if since > 0 {
		start = time.UnixMilli(since).UTC()
	} else {
		start = time.Now().UTC().Add(-time.Duration(limit) * duration)
	}

	price := b.resolvePrice(pair)
	candles := make([]Candle, 0, limit)
	for i := 0; i < limit; i++ {
		open := price
		close := open * (1 + (b.rng.Float64()*2-1)*0.02)
		high := maxFloat(open, close) * (1 + b.rng.Float64()*0.01)
		low := minFloat(open, close) * (1 - b.rng.Float64()*0.01)

		candles = append(candles, Candle{
			Timestamp: start.Add(time.Duration(i) * duration),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000 + b.rng.Float64()*99000,
		})
		price = close
	}
	b.priceCache[pair] = price
	return candles
}

// FetchOrderBook 获取模拟盘口
//
// 以当前价格为中心，按 0.1% 价差逐档生成。
func (b *PaperBroker) FetchOrderBook(ctx context.Context, pair string, limit int) (*OrderBook, error) {
	if limit <= 0 {
		limit = 5
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	last := b.resolvePrice(pair)
	book := &OrderBook{
		Pair:      pair,
		Bids:      make([]PriceLevel, 0, limit),
		Asks:      make([]PriceLevel, 0, limit),
		Timestamp: time.Now(),
	}

	for i := 0; i < limit; i++ {
		book.Asks = append(book.Asks, PriceLevel{
			Price:    last * (1 + float64(i)*0.001),
			Quantity: 10 + b.rng.Float64()*990,
		})
		book.Bids = append(book.Bids, PriceLevel{
			Price:    last * (1 - float64(i)*0.001),
			Quantity: 10 + b.rng.Float64()*990,
		})
	}

	return book, nil
}

// applySlippage 应用滑点: 买入价格上浮, 卖出价格下浮
func (b *PaperBroker) applySlippage(price float64, side Side) float64 {
	slippage := price * (b.cfg.SlippagePercent / 100)
	if side == SideBuy {
		return price + slippage
	}
	return price - slippage
}

// commission 计算手续费
func (b *PaperBroker) commission(orderValue float64) float64 {
	return orderValue * (b.cfg.CommissionPercent / 100)
}

// CommissionRate 手续费率（小数比例）
func (b *PaperBroker) CommissionRate() float64 {
	return b.cfg.CommissionPercent / 100
}

// QuoteCurrency 计价货币
func (b *PaperBroker) QuoteCurrency() string {
	return b.cfg.QuoteCurrency
}

// ErrInsufficientFunds 资金不足
type ErrInsufficientFunds struct {
	Need float64
	Have float64
}

func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("资金不足: 需要 %.2f, 可用 %.2f", e.Need, e.Have)
}

// ErrInvalidOrder 无效订单
type ErrInvalidOrder struct {
	Msg string
}

func (e *ErrInvalidOrder) Error() string {
	return e.Msg
}

// ErrOrderNotFound 订单不存在
type ErrOrderNotFound struct {
	OrderID string
}

func (e *ErrOrderNotFound) Error() string {
	return fmt.Sprintf("订单不存在: %s", e.OrderID)
}

// PlaceOrder 下单并立即成交
//
// 模拟盘所有订单同步全部成交，不模拟挂单和部分成交。
// 衍生品数量先向下归一到手数的整数倍，归一后为零则拒单。
func (b *PaperBroker) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	if req.Quantity <= 0 {
		return nil, &ErrInvalidOrder{Msg: fmt.Sprintf("订单数量必须为正数: %.4f", req.Quantity)}
	}

	quantity := req.Quantity
	base, _ := symbols.SplitPair(req.Pair)
	if symbols.ClassifyInstrument(base).RequiresLotSize() {
		lotSize := b.lots.GetLotSize(base)
		adjusted := b.lots.AdjustQuantity(base, quantity, false)
		if adjusted == 0 {
			return nil, &ErrInvalidOrder{Msg: fmt.Sprintf("订单数量 %.2f 不足一手 (%s 手数: %d)", quantity, base, lotSize)}
		}
		if float64(adjusted) != quantity {
			logger.Warn("订单数量 %.2f 不是 %s 手数 %d 的整数倍, 调整为 %d", quantity, base, lotSize, adjusted)
			quantity = float64(adjusted)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	currentPrice := b.resolvePrice(req.Pair)

	// 执行价格: 市价单按当前价加滑点, 限价单按请求价格
	var execPrice float64
	if req.Type == OrderTypeMarket {
		execPrice = b.applySlippage(currentPrice, req.Side)
	} else if req.Price > 0 {
		execPrice = req.Price
	} else {
		execPrice = currentPrice
	}

	orderValue := execPrice * quantity
	commission := b.commission(orderValue)
	totalCost := orderValue + commission
	quote := b.cfg.QuoteCurrency

	bal := b.balances[quote]
	if req.Side == SideBuy && totalCost > bal.Free {
		return nil, &ErrInsufficientFunds{Need: totalCost, Have: bal.Free}
	}

	now := time.Now()
	order := &Order{
		OrderID:    uuid.New().String(),
		ClientRef:  req.ClientRef,
		Pair:       req.Pair,
		Side:       req.Side,
		Type:       req.Type,
		Price:      execPrice,
		AvgPrice:   execPrice,
		Quantity:   quantity,
		FilledQty:  quantity,
		RemainQty:  0,
		Cost:       orderValue,
		Commission: commission,
		Status:     OrderStatusFilled,
		Timestamp:  now,
	}
	b.orders[order.OrderID] = order

	// 更新账本, 成交的资金和持仓变更在同一临界区内完成
	if req.Side == SideBuy {
		bal.Free -= totalCost
		bal.Total = bal.Free + bal.Used

		pos, ok := b.positions[req.Pair]
		if !ok {
			pos = &Position{Pair: req.Pair}
			b.positions[req.Pair] = pos
		}
		pos.Quantity += quantity
		pos.Cost += orderValue
		pos.AvgPrice = pos.Cost / pos.Quantity
		pos.UpdateTime = now
	} else {
		bal.Free += orderValue - commission
		bal.Total = bal.Free + bal.Used

		if pos, ok := b.positions[req.Pair]; ok {
			pos.Quantity -= quantity
			if pos.Quantity <= 0 {
				delete(b.positions, req.Pair)
			} else {
				pos.Cost -= pos.AvgPrice * quantity
				pos.UpdateTime = now
			}
		}
	}

	trade := Trade{
		OrderID:    order.OrderID,
		Pair:       req.Pair,
		Side:       req.Side,
		Quantity:   quantity,
		Price:      execPrice,
		Commission: commission,
		Timestamp:  now,
	}
	b.trades = append(b.trades, trade)

	if b.journal != nil {
		if err := b.journal.RecordFill(&trade); err != nil {
			logger.Error("写入成交流水失败: %v", err)
		}
	}

	logger.Info("📝 [PaperBroker] %s %s %.2f @ %.2f (手续费: %.4f)",
		req.Side, req.Pair, quantity, execPrice, commission)
	return order, nil
}

// CancelOrder 取消订单
//
// 模拟盘订单同步成交, 正常流程中取消一定会遇到已成交订单并返回错误。
// 仍保留完整实现以覆盖状态机。
func (b *PaperBroker) CancelOrder(ctx context.Context, pair, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.orders[orderID]
	if !ok {
		return &ErrOrderNotFound{OrderID: orderID}
	}
	if order.Status == OrderStatusFilled {
		return &ErrInvalidOrder{Msg: fmt.Sprintf("订单已成交, 无法取消: %s", orderID)}
	}
	if order.Status != OrderStatusOpen {
		return &ErrInvalidOrder{Msg: fmt.Sprintf("订单状态 %s, 无法取消: %s", order.Status, orderID)}
	}

	order.Status = OrderStatusCanceled

	// 释放买单占用的资金
	if order.Side == SideBuy {
		reserved := order.Cost + b.commission(order.Cost)
		bal := b.balances[b.cfg.QuoteCurrency]
		bal.Free += reserved
		bal.Used -= reserved
		bal.Total = bal.Free + bal.Used
	}
	return nil
}

// GetOrder 查询订单
func (b *PaperBroker) GetOrder(ctx context.Context, pair, orderID string) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.orders[orderID]
	if !ok {
		return nil, &ErrOrderNotFound{OrderID: orderID}
	}
	copied := *order
	return &copied, nil
}

// GetOrders 查询某交易对的全部订单（按时间升序）
func (b *PaperBroker) GetOrders(ctx context.Context, pair string, since int64) ([]*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var orders []*Order
	for _, order := range b.orders {
		if order.Pair != pair {
			continue
		}
		if since > 0 && order.Timestamp.UnixMilli() < since {
			continue
		}
		copied := *order
		orders = append(orders, &copied)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Timestamp.Before(orders[j].Timestamp)
	})
	return orders, nil
}

// GetOpenOrders 查询未成交订单
func (b *PaperBroker) GetOpenOrders(ctx context.Context, pair string) ([]*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var orders []*Order
	for _, order := range b.orders {
		if order.Status == OrderStatusOpen && (pair == "" || order.Pair == pair) {
			copied := *order
			orders = append(orders, &copied)
		}
	}
	return orders, nil
}

// FetchBalance 获取账户资金
//
// 持仓以基础货币形式并入资金表, 如 10 股 RELIANCE 记为 RELIANCE: {free: 10}。
// 首次调用时从成交流水恢复持仓。
func (b *PaperBroker) FetchBalance(ctx context.Context) (map[string]Balance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.restored {
		b.restorePositions()
		b.restored = true
	}

	result := make(map[string]Balance, len(b.positions)+1)
	for currency, bal := range b.balances {
		result[currency] = *bal
	}
	for pair, pos := range b.positions {
		if pos.Quantity <= 0 {
			continue
		}
		base, _ := symbols.SplitPair(pair)
		result[base] = Balance{Free: pos.Quantity, Used: 0, Total: pos.Quantity}
	}
	return result, nil
}

// restorePositions 从成交流水恢复持仓, 调用方持有锁
func (b *PaperBroker) restorePositions() {
	if b.journal == nil {
		return
	}

	positions, err := b.journal.OpenPositions()
	if err != nil {
		logger.Error("从成交流水恢复持仓失败: %v", err)
		return
	}
	if len(positions) == 0 {
		return
	}

	var totalUsed float64
	for _, pos := range positions {
		existing, ok := b.positions[pos.Pair]
		if !ok {
			existing = &Position{Pair: pos.Pair}
			b.positions[pos.Pair] = existing
		}
		existing.Quantity += pos.Quantity
		existing.Cost += pos.Cost
		if existing.Quantity > 0 {
			existing.AvgPrice = existing.Cost / existing.Quantity
		}
		totalUsed += pos.Cost
	}

	if totalUsed > 0 {
		bal := b.balances[b.cfg.QuoteCurrency]
		bal.Used = totalUsed
		bal.Free = maxFloat(0, b.cfg.InitialBalance-totalUsed)
		bal.Total = bal.Free + bal.Used
		logger.Info("已恢复 %d 个持仓, 可用 %.2f, 占用 %.2f", len(positions), bal.Free, bal.Used)
	}
}

// GetPositions 查询持仓
func (b *PaperBroker) GetPositions(ctx context.Context, pair string) ([]*Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var positions []*Position
	for _, pos := range b.positions {
		if pair != "" && pos.Pair != pair {
			continue
		}
		copied := *pos
		positions = append(positions, &copied)
	}
	return positions, nil
}

// GetTradeHistory 获取成交历史
func (b *PaperBroker) GetTradeHistory() []Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	trades := make([]Trade, len(b.trades))
	copy(trades, b.trades)
	return trades
}

// Reset 重置为初始状态并重新加载历史数据
//
// 相同输入下重置后的状态完全可重复。
func (b *PaperBroker) Reset() error {
	b.mu.Lock()
	b.resetState()
	b.mu.Unlock()

	if b.cfg.DataDir != "" {
		if err := b.loadHistory(); err != nil {
			return err
		}
	}
	logger.Info("🔄 [PaperBroker] 已重置为初始状态")
	return nil
}

// Close 释放资源
func (b *PaperBroker) Close() error {
	return nil
}

func timeframeDuration(timeframe string) (time.Duration, bool) {
	switch timeframe {
	case "1m":
		return time.Minute, true
	case "3m":
		return 3 * time.Minute, true
	case "5m":
		return 5 * time.Minute, true
	case "10m":
		return 10 * time.Minute, true
	case "15m":
		return 15 * time.Minute, true
	case "30m":
		return 30 * time.Minute, true
	case "1h":
		return time.Hour, true
	case "1d":
		return 24 * time.Hour, true
	default:
		return 0, false
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
