package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stockmesh/logger"

	"github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"
)

// 为了避免循环导入，在这里定义需要的类型

// Side 买卖方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "OPEN"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

// OrderRequest 下单请求
type OrderRequest struct {
	Pair     string
	Side     Side
	Type     OrderType
	Quantity float64
	Price    float64
}

// Order 订单信息
type Order struct {
	OrderID   string
	Pair      string
	Side      Side
	Type      OrderType
	Status    OrderStatus
	Price     float64
	AvgPrice  float64
	Quantity  float64
	FilledQty float64
	RemainQty float64
	Timestamp int64
}

// Ticker 行情快照
type Ticker struct {
	Symbol     string
	Bid        float64
	Ask        float64
	Last       float64
	BaseVolume float64
	Timestamp  int64
}

// Candle K线数据
type Candle struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// PriceLevel 盘口档位
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// OrderBook 盘口深度
type OrderBook struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp int64
}

// Balance 资金信息
type Balance struct {
	Currency string
	Free     float64
	Used     float64
	Total    float64
}

// intervalMap 周期映射
var intervalMap = map[string]string{
	"1m":  "1m",
	"3m":  "3m",
	"5m":  "5m",
	"15m": "15m",
	"30m": "30m",
	"1h":  "1h",
	"1d":  "1d",
}

// Adapter 币安现货适配器，通过官方 SDK 访问
type Adapter struct {
	client     *binance.Client
	limiter    *rate.Limiter
	useTestnet bool
}

// NewAdapter 创建币安适配器
func NewAdapter(apiKey, secretKey string, useTestnet bool) (*Adapter, error) {
	if apiKey == "" || secretKey == "" {
		return nil, fmt.Errorf("Binance API 配置不完整")
	}

	// 必须在创建客户端之前设置
	binance.UseTestnet = useTestnet
	if useTestnet {
		logger.Info("🌐 [Binance] 使用测试网模式")
	}

	client := binance.NewClient(apiKey, secretKey)
	client.NewSetServerTimeService().Do(context.Background())

	return &Adapter{
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(10), 10), // 每秒 10 次，避免触发限流
		useTestnet: useTestnet,
	}, nil
}

// GetName 返回券商名称
func (a *Adapter) GetName() string {
	return "binance"
}

// toSymbol 交易对转币安符号：BTC/USDT -> BTCUSDT
func toSymbol(pair string) string {
	return strings.ReplaceAll(pair, "/", "")
}

// FetchTicker 获取行情快照
func (a *Adapter) FetchTicker(ctx context.Context, pair string) (*Ticker, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	symbol := toSymbol(pair)
	books, err := a.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("未找到交易对 %s 的行情", pair)
	}

	stats, err := a.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("未找到交易对 %s 的 24h 统计", pair)
	}

	bid, _ := strconv.ParseFloat(books[0].BidPrice, 64)
	ask, _ := strconv.ParseFloat(books[0].AskPrice, 64)
	last, _ := strconv.ParseFloat(stats[0].LastPrice, 64)
	volume, _ := strconv.ParseFloat(stats[0].Volume, 64)

	return &Ticker{
		Symbol:     pair,
		Bid:        bid,
		Ask:        ask,
		Last:       last,
		BaseVolume: volume,
		Timestamp:  time.Now().UnixMilli(),
	}, nil
}

// FetchOHLCV 获取历史 K线，since 为毫秒时间戳
func (a *Adapter) FetchOHLCV(ctx context.Context, pair, timeframe string, since int64, limit int) ([]Candle, error) {
	interval, ok := intervalMap[timeframe]
	if !ok {
		return nil, fmt.Errorf("不支持的时间周期: %s", timeframe)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	svc := a.client.NewKlinesService().Symbol(toSymbol(pair)).Interval(interval)
	if since > 0 {
		svc = svc.StartTime(since)
	}
	if limit > 0 {
		svc = svc.Limit(limit)
	}

	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取历史K线失败: %w", err)
	}

	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		close, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)

		candles = append(candles, Candle{
			Timestamp: k.OpenTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
		})
	}
	return candles, nil
}

// FetchOrderBook 获取盘口深度
func (a *Adapter) FetchOrderBook(ctx context.Context, pair string, limit int) (*OrderBook, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 20
	}

	depth, err := a.client.NewDepthService().Symbol(toSymbol(pair)).Limit(limit).Do(ctx)
	if err != nil {
		return nil, err
	}

	book := &OrderBook{
		Symbol:    pair,
		Timestamp: time.Now().UnixMilli(),
	}
	for _, b := range depth.Bids {
		price, _ := strconv.ParseFloat(b.Price, 64)
		qty, _ := strconv.ParseFloat(b.Quantity, 64)
		book.Bids = append(book.Bids, PriceLevel{Price: price, Quantity: qty})
	}
	for _, s := range depth.Asks {
		price, _ := strconv.ParseFloat(s.Price, 64)
		qty, _ := strconv.ParseFloat(s.Quantity, 64)
		book.Asks = append(book.Asks, PriceLevel{Price: price, Quantity: qty})
	}
	return book, nil
}

// statusFromBinance 订单状态映射
func statusFromBinance(s binance.OrderStatusType) OrderStatus {
	switch s {
	case binance.OrderStatusTypeFilled:
		return OrderStatusFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return OrderStatusCanceled
	case binance.OrderStatusTypeRejected:
		return OrderStatusRejected
	default:
		return OrderStatusOpen
	}
}

// PlaceOrder 下单
func (a *Adapter) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("无效的下单数量: %.8f", req.Quantity)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	quantityStr := strconv.FormatFloat(req.Quantity, 'f', -1, 64)

	svc := a.client.NewCreateOrderService().
		Symbol(toSymbol(req.Pair)).
		Side(binance.SideType(req.Side)).
		Quantity(quantityStr)

	if req.Type == OrderTypeLimit {
		if req.Price <= 0 {
			return nil, fmt.Errorf("无效的下单价格: %.8f", req.Price)
		}
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(strconv.FormatFloat(req.Price, 'f', -1, 64))
	} else {
		svc = svc.Type(binance.OrderTypeMarket)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}

	executed, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	avgPrice := 0.0
	if executed > 0 {
		quoteQty, _ := strconv.ParseFloat(resp.CummulativeQuoteQuantity, 64)
		avgPrice = quoteQty / executed
	}

	logger.Info("📝 [Binance] 下单成功: %s %s %s (ID: %d)", req.Side, req.Pair, quantityStr, resp.OrderID)

	return &Order{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		Pair:      req.Pair,
		Side:      req.Side,
		Type:      req.Type,
		Status:    statusFromBinance(resp.Status),
		Price:     req.Price,
		AvgPrice:  avgPrice,
		Quantity:  req.Quantity,
		FilledQty: executed,
		RemainQty: req.Quantity - executed,
		Timestamp: resp.TransactTime,
	}, nil
}

// GetOrder 查询订单
func (a *Adapter) GetOrder(ctx context.Context, pair, orderID string) (*Order, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("无效的订单 ID: %s", orderID)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	order, err := a.client.NewGetOrderService().
		Symbol(toSymbol(pair)).
		OrderID(id).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	return a.convertOrder(pair, order), nil
}

// convertOrder SDK 订单转内部订单
func (a *Adapter) convertOrder(pair string, order *binance.Order) *Order {
	price, _ := strconv.ParseFloat(order.Price, 64)
	quantity, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	executed, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	avgPrice := 0.0
	if executed > 0 {
		quoteQty, _ := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)
		avgPrice = quoteQty / executed
	}

	return &Order{
		OrderID:   strconv.FormatInt(order.OrderID, 10),
		Pair:      pair,
		Side:      Side(order.Side),
		Type:      OrderType(order.Type),
		Status:    statusFromBinance(order.Status),
		Price:     price,
		AvgPrice:  avgPrice,
		Quantity:  quantity,
		FilledQty: executed,
		RemainQty: quantity - executed,
		Timestamp: order.Time,
	}
}

// CancelOrder 取消订单
func (a *Adapter) CancelOrder(ctx context.Context, pair, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("无效的订单 ID: %s", orderID)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err = a.client.NewCancelOrderService().
		Symbol(toSymbol(pair)).
		OrderID(id).
		Do(ctx)
	if err != nil {
		return err
	}

	logger.Info("✅ [Binance] 取消订单成功: %s", orderID)
	return nil
}

// GetOpenOrders 查询未完成订单
func (a *Adapter) GetOpenOrders(ctx context.Context, pair string) ([]*Order, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	orders, err := a.client.NewListOpenOrdersService().
		Symbol(toSymbol(pair)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询挂单失败: %w", err)
	}

	result := make([]*Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, a.convertOrder(pair, order))
	}
	return result, nil
}

// GetOrders 查询全部订单（含历史）
func (a *Adapter) GetOrders(ctx context.Context, pair string, since int64) ([]*Order, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	svc := a.client.NewListOrdersService().Symbol(toSymbol(pair))
	if since > 0 {
		svc = svc.StartTime(since)
	}

	orders, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询订单历史失败: %w", err)
	}

	result := make([]*Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, a.convertOrder(pair, order))
	}
	return result, nil
}

// FetchBalance 获取账户余额，跳过零余额资产
func (a *Adapter) FetchBalance(ctx context.Context) (map[string]*Balance, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	account, err := a.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, err
	}

	balances := make(map[string]*Balance)
	for _, b := range account.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		if free == 0 && locked == 0 {
			continue
		}
		balances[b.Asset] = &Balance{
			Currency: b.Asset,
			Free:     free,
			Used:     locked,
			Total:    free + locked,
		}
	}
	return balances, nil
}

// Close 释放资源
func (a *Adapter) Close() error {
	return nil
}
