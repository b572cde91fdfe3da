package openalgo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"stockmesh/logger"
	"stockmesh/metrics"
	"stockmesh/ratelimit"
	"stockmesh/symbols"
)

// ErrMarketClosed 非 NSE 交易时段下单
var ErrMarketClosed = errors.New("非交易时段, NSE 交易时间为周一至周五 9:15-15:30 IST")

// intervalMap 周期映射，OpenAlgo 日线用 "D"
var intervalMap = map[string]string{
	"1m":  "1m",
	"3m":  "3m",
	"5m":  "5m",
	"10m": "10m",
	"15m": "15m",
	"30m": "30m",
	"1h":  "1h",
	"1d":  "D",
}

// Config OpenAlgo 适配器配置
type Config struct {
	APIKey          string
	Host            string
	Strategy        string
	DefaultExchange string // NSE / BSE / NFO / MCX
	FixedQty        int    // 大于 0 时覆盖下单数量
}

// Adapter OpenAlgo 适配器
type Adapter struct {
	client   *Client
	mapper   *symbols.Mapper
	lots     *symbols.LotSizeManager
	limiter  *ratelimit.EndpointLimiter
	cfg      Config
	loc      *time.Location
	now      func() time.Time // 测试注入
	stream   *QuoteStream
	mu       sync.RWMutex
	ordersMu sync.RWMutex
	orders   map[string]*Order // 本地订单缓存，openorders 不可用时兜底
}

// NewAdapter 创建 OpenAlgo 适配器
func NewAdapter(cfg Config, mapper *symbols.Mapper, lots *symbols.LotSizeManager, limiter *ratelimit.EndpointLimiter) *Adapter {
	if cfg.Strategy == "" {
		cfg.Strategy = "stockmesh"
	}
	if cfg.DefaultExchange == "" {
		cfg.DefaultExchange = "NSE"
	}
	if limiter == nil {
		limiter = ratelimit.NewEndpointLimiter(ratelimit.ForBroker("openalgo"))
	}

	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+30*60)
	}

	return &Adapter{
		client:  NewClient(cfg.APIKey, cfg.Host),
		mapper:  mapper,
		lots:    lots,
		limiter: limiter,
		cfg:     cfg,
		loc:     loc,
		now:     time.Now,
		orders:  make(map[string]*Order),
	}
}

// wait 限流等待，等待时长计入指标
func (a *Adapter) wait(ctx context.Context, endpoint string) error {
	waited, err := a.limiter.Wait(ctx, endpoint)
	if err != nil {
		return err
	}
	metrics.RecordRateLimitWait("openalgo", endpoint, waited)
	return nil
}

// GetName 返回券商名称
func (a *Adapter) GetName() string {
	return "openalgo"
}

// IsMarketOpen NSE 交易时段：周一至周五 9:15 - 15:30 IST
func (a *Adapter) IsMarketOpen() bool {
	now := a.now().In(a.loc)

	wd := now.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}

	open := time.Date(now.Year(), now.Month(), now.Day(), 9, 15, 0, 0, a.loc)
	close := time.Date(now.Year(), now.Month(), now.Day(), 15, 30, 0, 0, a.loc)
	return !now.Before(open) && !now.After(close)
}

// FetchTicker 获取行情快照
func (a *Adapter) FetchTicker(ctx context.Context, pair string) (*Ticker, error) {
	if err := a.wait(ctx, "quotes"); err != nil {
		return nil, err
	}

	symbol, exchange := a.mapper.ToOpenAlgo(pair, a.cfg.DefaultExchange)
	quote, err := a.client.Quotes(ctx, symbol, exchange)
	if err != nil {
		return nil, err
	}

	return &Ticker{
		Symbol:     pair,
		Bid:        float64(quote.Bid),
		Ask:        float64(quote.Ask),
		Last:       float64(quote.LTP),
		Open:       float64(quote.Open),
		High:       float64(quote.High),
		Low:        float64(quote.Low),
		BaseVolume: float64(quote.Volume),
		Timestamp:  time.Now().UnixMilli(),
	}, nil
}

// FetchOrderBook 获取盘口深度
func (a *Adapter) FetchOrderBook(ctx context.Context, pair string, limit int) (*OrderBook, error) {
	if err := a.wait(ctx, "depth"); err != nil {
		return nil, err
	}

	symbol, exchange := a.mapper.ToOpenAlgo(pair, a.cfg.DefaultExchange)
	depth, err := a.client.Depth(ctx, symbol, exchange)
	if err != nil {
		return nil, err
	}

	book := &OrderBook{
		Symbol:    pair,
		Timestamp: time.Now().UnixMilli(),
	}
	for i, lvl := range depth.Bids {
		if limit > 0 && i >= limit {
			break
		}
		book.Bids = append(book.Bids, PriceLevel{Price: float64(lvl.Price), Quantity: float64(lvl.Quantity)})
	}
	for i, lvl := range depth.Asks {
		if limit > 0 && i >= limit {
			break
		}
		book.Asks = append(book.Asks, PriceLevel{Price: float64(lvl.Price), Quantity: float64(lvl.Quantity)})
	}
	return book, nil
}

// FetchOHLCV 获取历史 K线，since 为毫秒时间戳，0 表示最近 10 天
func (a *Adapter) FetchOHLCV(ctx context.Context, pair, timeframe string, since int64, limit int) ([]Candle, error) {
	interval, ok := intervalMap[timeframe]
	if !ok {
		return nil, fmt.Errorf("不支持的时间周期: %s", timeframe)
	}

	if err := a.wait(ctx, "history"); err != nil {
		return nil, err
	}

	now := time.Now().In(a.loc)
	start := now.AddDate(0, 0, -10)
	if since > 0 {
		start = time.UnixMilli(since).In(a.loc)
	}

	symbol, exchange := a.mapper.ToOpenAlgo(pair, a.cfg.DefaultExchange)
	raw, err := a.client.History(ctx, symbol, exchange, interval,
		start.Format("2006-01-02"), now.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, c := range raw {
		ts := c.Timestamp * 1000 // 秒 -> 毫秒
		if since > 0 && ts < since {
			continue
		}
		candles = append(candles, Candle{
			Timestamp: ts,
			Open:      float64(c.Open),
			High:      float64(c.High),
			Low:       float64(c.Low),
			Close:     float64(c.Close),
			Volume:    float64(c.Volume),
		})
	}

	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// PlaceOrder 下单，仅在 NSE 交易时段内受理
func (a *Adapter) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	if !a.IsMarketOpen() {
		return nil, ErrMarketClosed
	}

	if err := a.wait(ctx, "placeorder"); err != nil {
		return nil, err
	}

	symbol, exchange := a.mapper.ToOpenAlgo(req.Pair, a.cfg.DefaultExchange)
	base, _ := symbols.SplitPair(req.Pair)

	// NSE 整数股数，最少 1 股
	qty := int(req.Quantity + 0.5)
	if qty < 1 {
		qty = 1
	}
	if symbols.ClassifyInstrument(base).RequiresLotSize() && a.lots != nil {
		adjusted := a.lots.AdjustQuantity(base, req.Quantity, false)
		if adjusted <= 0 {
			return nil, &APIError{HTTPStatus: 200, Message: fmt.Sprintf("%s 数量 %.0f 不足一手", req.Pair, req.Quantity)}
		}
		if float64(adjusted) != req.Quantity {
			logger.Warn("⚠️ [OpenAlgo] %s 数量 %.0f 调整为手数整数倍 %d", req.Pair, req.Quantity, adjusted)
		}
		qty = adjusted
	}
	if a.cfg.FixedQty > 0 {
		qty = a.cfg.FixedQty
		logger.Info("📌 [OpenAlgo] 使用固定下单数量: %d", qty)
	}

	payload := map[string]interface{}{
		"strategy":      a.cfg.Strategy,
		"symbol":        symbol,
		"action":        string(req.Side),
		"exchange":      exchange,
		"pricetype":     string(req.Type),
		"product":       req.Product,
		"quantity":      qty,
		"price":         "0",
		"trigger_price": "0",
	}
	if payload["product"] == "" {
		payload["product"] = "MIS"
	}
	if req.Type == OrderTypeLimit && req.Price > 0 {
		payload["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
	}
	if req.TriggerPrice > 0 {
		payload["trigger_price"] = strconv.FormatFloat(req.TriggerPrice, 'f', -1, 64)
	}

	orderID, err := a.client.PlaceOrder(ctx, payload)
	if err != nil {
		return nil, err
	}

	order := &Order{
		OrderID:   orderID,
		Pair:      req.Pair,
		Side:      req.Side,
		Type:      req.Type,
		Status:    OrderStatusOpen,
		Price:     req.Price,
		Quantity:  float64(qty),
		RemainQty: float64(qty),
		Timestamp: time.Now().UnixMilli(),
	}

	a.ordersMu.Lock()
	a.orders[orderID] = order
	a.ordersMu.Unlock()

	logger.Info("📝 [OpenAlgo] 下单成功: %s %s %d %s (ID: %s)", req.Side, req.Pair, qty, req.Type, orderID)

	cp := *order
	return &cp, nil
}

// statusFromOpenAlgo 订单状态映射
func statusFromOpenAlgo(s string) OrderStatus {
	switch s {
	case "complete", "COMPLETE":
		return OrderStatusFilled
	case "cancelled", "CANCELLED", "canceled":
		return OrderStatusCanceled
	case "rejected", "REJECTED":
		return OrderStatusRejected
	default:
		return OrderStatusOpen
	}
}

// GetOrder 查询订单状态
func (a *Adapter) GetOrder(ctx context.Context, pair, orderID string) (*Order, error) {
	if err := a.wait(ctx, "orderstatus"); err != nil {
		return nil, err
	}

	data, err := a.client.OrderStatus(ctx, orderID, a.cfg.Strategy)
	if err != nil {
		return nil, err
	}

	status := statusFromOpenAlgo(data.OrderStatus)
	qty := float64(data.Quantity)
	filled := 0.0
	if status == OrderStatusFilled {
		filled = qty
	}

	order := &Order{
		OrderID:   orderID,
		Pair:      pair,
		Side:      Side(data.Action),
		Type:      OrderType(data.PriceType),
		Status:    status,
		Price:     float64(data.Price),
		AvgPrice:  float64(data.AveragePrice),
		Quantity:  qty,
		FilledQty: filled,
		RemainQty: qty - filled,
	}

	a.ordersMu.Lock()
	if status == OrderStatusOpen {
		a.orders[orderID] = order
	} else {
		delete(a.orders, orderID)
	}
	a.ordersMu.Unlock()

	cp := *order
	return &cp, nil
}

// CancelOrder 取消订单
func (a *Adapter) CancelOrder(ctx context.Context, pair, orderID string) error {
	if err := a.wait(ctx, "cancelorder"); err != nil {
		return err
	}

	if err := a.client.CancelOrder(ctx, orderID, a.cfg.Strategy); err != nil {
		return err
	}

	a.ordersMu.Lock()
	delete(a.orders, orderID)
	a.ordersMu.Unlock()

	logger.Info("🗑️ [OpenAlgo] 订单已取消: %s", orderID)
	return nil
}

// GetOpenOrders 获取活跃订单，接口失败时回退本地缓存
func (a *Adapter) GetOpenOrders(ctx context.Context, pair string) ([]*Order, error) {
	if err := a.wait(ctx, "openorders"); err != nil {
		return nil, err
	}

	data, err := a.client.OpenOrders(ctx, a.cfg.Strategy)
	if err != nil {
		logger.Warn("⚠️ [OpenAlgo] 获取活跃订单失败，使用本地缓存: %v", err)
		return a.cachedOpenOrders(pair), nil
	}

	orders := make([]*Order, 0, len(data))
	a.ordersMu.Lock()
	for _, d := range data {
		orderPair := a.mapper.FromBroker("openalgo", d.Symbol, "INR")
		if pair != "" && orderPair != pair {
			continue
		}
		order := &Order{
			OrderID:   d.OrderID,
			Pair:      orderPair,
			Side:      Side(d.Action),
			Type:      OrderType(d.PriceType),
			Status:    OrderStatusOpen,
			Price:     float64(d.Price),
			Quantity:  float64(d.Quantity),
			RemainQty: float64(d.Quantity),
		}
		a.orders[d.OrderID] = order
		cp := *order
		orders = append(orders, &cp)
	}
	a.ordersMu.Unlock()

	return orders, nil
}

// GetOrders 查询订单历史
// OpenAlgo 没有全量订单查询接口，返回本地缓存中匹配的订单。
func (a *Adapter) GetOrders(ctx context.Context, pair string, since int64) ([]*Order, error) {
	a.ordersMu.RLock()
	defer a.ordersMu.RUnlock()

	orders := make([]*Order, 0, len(a.orders))
	for _, o := range a.orders {
		if pair != "" && o.Pair != pair {
			continue
		}
		if since > 0 && o.Timestamp < since {
			continue
		}
		cp := *o
		orders = append(orders, &cp)
	}

	sort.Slice(orders, func(i, j int) bool { return orders[i].Timestamp < orders[j].Timestamp })
	return orders, nil
}

// cachedOpenOrders 返回本地缓存的活跃订单副本
func (a *Adapter) cachedOpenOrders(pair string) []*Order {
	a.ordersMu.RLock()
	defer a.ordersMu.RUnlock()

	orders := make([]*Order, 0, len(a.orders))
	for _, o := range a.orders {
		if pair != "" && o.Pair != pair {
			continue
		}
		cp := *o
		orders = append(orders, &cp)
	}
	return orders
}

// FetchBalance 获取资金信息
func (a *Adapter) FetchBalance(ctx context.Context) (map[string]*Balance, error) {
	if err := a.wait(ctx, "funds"); err != nil {
		return nil, err
	}

	funds, err := a.client.Funds(ctx)
	if err != nil {
		return nil, err
	}

	free := float64(funds.AvailableCash)
	used := float64(funds.UsedMargin)
	return map[string]*Balance{
		"INR": {
			Currency: "INR",
			Free:     free,
			Used:     used,
			Total:    free + used,
		},
	}, nil
}

// StartQuoteStream 启动行情 WebSocket 推送
func (a *Adapter) StartQuoteStream(ctx context.Context, pairs []string, callback func(*Ticker)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream != nil {
		return fmt.Errorf("行情推送已启动")
	}

	wsSymbols := make([]wsInstrument, 0, len(pairs))
	for _, pair := range pairs {
		symbol, exchange := a.mapper.ToOpenAlgo(pair, a.cfg.DefaultExchange)
		wsSymbols = append(wsSymbols, wsInstrument{Pair: pair, Symbol: symbol, Exchange: exchange})
	}

	a.stream = NewQuoteStream(a.cfg.Host, a.cfg.APIKey)
	return a.stream.Start(ctx, wsSymbols, callback)
}

// Close 释放资源
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream != nil {
		a.stream.Stop()
		a.stream = nil
	}
	return nil
}

// GetRateLimitStats 返回限流统计
func (a *Adapter) GetRateLimitStats() map[string]ratelimit.Stats {
	return a.limiter.GetStats()
}

// ReloadSymbolMappings 重新加载符号映射文件（配置热更新时调用）
func (a *Adapter) ReloadSymbolMappings(path string) error {
	return a.mapper.LoadMappings(path)
}
