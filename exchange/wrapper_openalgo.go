package exchange

import (
	"context"
	"errors"
	"math"
	"time"

	"stockmesh/exchange/openalgo"
)

// openalgoWrapper OpenAlgo 包装器
type openalgoWrapper struct {
	adapter *openalgo.Adapter
	markets map[string]Market
}

// openalgoFeeRate NSE 默认券商费率 0.03%
const openalgoFeeRate = 0.0003

// translateOpenAlgoError OpenAlgo 错误转换为带类别的错误
func translateOpenAlgoError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, openalgo.ErrMarketClosed) {
		return WrapError(KindExchange, "openalgo", err, "市场休市")
	}

	var apiErr *openalgo.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimited():
			return WrapError(KindDDoSProtection, "openalgo", err, "触发限流")
		case apiErr.IsServerError():
			return WrapError(KindTemporary, "openalgo", err, "服务端临时错误")
		case apiErr.IsNotFound():
			return WrapError(KindOrderNotFound, "openalgo", err, "订单不存在")
		default:
			return WrapError(KindExchange, "openalgo", err, "业务错误")
		}
	}

	var transportErr *openalgo.TransportError
	if errors.As(err, &transportErr) {
		return WrapError(KindTemporary, "openalgo", err, "网络错误")
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return WrapError(KindExchange, "openalgo", err, "未知错误")
}

// GetName 获取券商名称
func (w *openalgoWrapper) GetName() string {
	return w.adapter.GetName()
}

// Capabilities 获取能力表
//
// OpenAlgo 无持仓查询接口，持仓由调用方自行维护。
func (w *openalgoWrapper) Capabilities() Capabilities {
	return Capabilities{
		FetchTicker:     true,
		FetchOHLCV:      true,
		FetchOrderBook:  true,
		FetchBalance:    true,
		CreateOrder:     true,
		CancelOrder:     true,
		FetchOrder:      true,
		FetchOrders:     true,
		FetchOpenOrders: true,
		WatchQuotes:     true,
	}
}

// GetMarkets 获取市场目录
func (w *openalgoWrapper) GetMarkets() map[string]Market {
	return w.markets
}

// FetchTicker 获取行情快照
func (w *openalgoWrapper) FetchTicker(ctx context.Context, pair string) (*Ticker, error) {
	ticker, err := w.adapter.FetchTicker(ctx, pair)
	if err != nil {
		return nil, translateOpenAlgoError(err)
	}

	return &Ticker{
		Pair:       ticker.Symbol,
		Last:       ticker.Last,
		Bid:        ticker.Bid,
		Ask:        ticker.Ask,
		High:       ticker.High,
		Low:        ticker.Low,
		Open:       ticker.Open,
		BaseVolume: ticker.BaseVolume,
		Timestamp:  time.UnixMilli(ticker.Timestamp),
	}, nil
}

// FetchOHLCV 获取K线
func (w *openalgoWrapper) FetchOHLCV(ctx context.Context, pair, timeframe string, since int64, limit int) ([]Candle, error) {
	candles, err := w.adapter.FetchOHLCV(ctx, pair, timeframe, since, limit)
	if err != nil {
		return nil, translateOpenAlgoError(err)
	}

	result := make([]Candle, len(candles))
	for i, c := range candles {
		result[i] = Candle{
			Timestamp: time.UnixMilli(c.Timestamp),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
	}
	return result, nil
}

// FetchOrderBook 获取盘口深度
func (w *openalgoWrapper) FetchOrderBook(ctx context.Context, pair string, limit int) (*OrderBook, error) {
	book, err := w.adapter.FetchOrderBook(ctx, pair, limit)
	if err != nil {
		return nil, translateOpenAlgoError(err)
	}

	result := &OrderBook{
		Pair:      book.Symbol,
		Timestamp: time.UnixMilli(book.Timestamp),
	}
	for _, lvl := range book.Bids {
		result.Bids = append(result.Bids, PriceLevel{Price: lvl.Price, Quantity: lvl.Quantity})
	}
	for _, lvl := range book.Asks {
		result.Asks = append(result.Asks, PriceLevel{Price: lvl.Price, Quantity: lvl.Quantity})
	}
	return result, nil
}

// FetchBalance 获取账户资金
func (w *openalgoWrapper) FetchBalance(ctx context.Context) (Balances, error) {
	balances, err := w.adapter.FetchBalance(ctx)
	if err != nil {
		return nil, translateOpenAlgoError(err)
	}

	result := make(Balances, len(balances))
	for currency, bal := range balances {
		result[currency] = Balance{Free: bal.Free, Used: bal.Used, Total: bal.Total}
	}
	return result, nil
}

// convertOpenAlgoOrder OpenAlgo 订单转通用订单
func convertOpenAlgoOrder(order *openalgo.Order) *Order {
	return &Order{
		OrderID:   order.OrderID,
		Pair:      order.Pair,
		Side:      Side(order.Side),
		Type:      OrderType(order.Type),
		Price:     order.Price,
		AvgPrice:  order.AvgPrice,
		Quantity:  order.Quantity,
		FilledQty: order.FilledQty,
		RemainQty: order.RemainQty,
		Status:    OrderStatus(order.Status),
		Timestamp: time.UnixMilli(order.Timestamp),
	}
}

// PlaceOrder 下单
func (w *openalgoWrapper) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	product := req.Product
	if product == "" {
		product = ProductMIS
	}

	order, err := w.adapter.PlaceOrder(ctx, &openalgo.OrderRequest{
		Pair:     req.Pair,
		Side:     openalgo.Side(req.Side),
		Type:     openalgo.OrderType(req.Type),
		Quantity: req.Quantity,
		Price:    req.Price,
		Product:  string(product),
	})
	if err != nil {
		return nil, translateOpenAlgoError(err)
	}
	return convertOpenAlgoOrder(order), nil
}

// CancelOrder 取消订单
func (w *openalgoWrapper) CancelOrder(ctx context.Context, pair, orderID string) error {
	return translateOpenAlgoError(w.adapter.CancelOrder(ctx, pair, orderID))
}

// GetOrder 查询订单
func (w *openalgoWrapper) GetOrder(ctx context.Context, pair, orderID string) (*Order, error) {
	order, err := w.adapter.GetOrder(ctx, pair, orderID)
	if err != nil {
		return nil, translateOpenAlgoError(err)
	}
	return convertOpenAlgoOrder(order), nil
}

// GetOpenOrders 查询未成交订单
func (w *openalgoWrapper) GetOpenOrders(ctx context.Context, pair string) ([]*Order, error) {
	orders, err := w.adapter.GetOpenOrders(ctx, pair)
	if err != nil {
		return nil, translateOpenAlgoError(err)
	}

	result := make([]*Order, len(orders))
	for i, order := range orders {
		result[i] = convertOpenAlgoOrder(order)
	}
	return result, nil
}

// GetOrders 查询全部订单（本地缓存）
func (w *openalgoWrapper) GetOrders(ctx context.Context, pair string, since int64) ([]*Order, error) {
	orders, err := w.adapter.GetOrders(ctx, pair, since)
	if err != nil {
		return nil, translateOpenAlgoError(err)
	}

	result := make([]*Order, len(orders))
	for i, order := range orders {
		result[i] = convertOpenAlgoOrder(order)
	}
	return result, nil
}

// GetPositions 查询持仓
func (w *openalgoWrapper) GetPositions(ctx context.Context, pair string) ([]*Position, error) {
	return nil, NewError(KindNotSupported, "openalgo", "不支持持仓查询")
}

// GetFee 获取手续费率
func (w *openalgoWrapper) GetFee(pair string) float64 {
	return openalgoFeeRate
}

// GetMinStake 获取最小下单金额（股票一股，衍生品一手）
func (w *openalgoWrapper) GetMinStake(pair string, price float64) float64 {
	return minStakeFor(w.markets, pair, price)
}

// GetMaxStake 获取最大下单金额，OpenAlgo 不设上限
func (w *openalgoWrapper) GetMaxStake(ctx context.Context, pair string) (float64, error) {
	return math.Inf(1), nil
}

// StartQuoteStream 启动行情推送
func (w *openalgoWrapper) StartQuoteStream(ctx context.Context, pairs []string, callback func(*Ticker)) error {
	err := w.adapter.StartQuoteStream(ctx, pairs, func(t *openalgo.Ticker) {
		callback(&Ticker{
			Pair:       t.Symbol,
			Last:       t.Last,
			Bid:        t.Bid,
			Ask:        t.Ask,
			High:       t.High,
			Low:        t.Low,
			Open:       t.Open,
			BaseVolume: t.BaseVolume,
			Timestamp:  time.UnixMilli(t.Timestamp),
		})
	})
	return translateOpenAlgoError(err)
}

// IsMarketOpen 是否在交易时段
func (w *openalgoWrapper) IsMarketOpen() bool {
	return w.adapter.IsMarketOpen()
}

// ReloadSymbolMappings 重新加载符号映射文件
func (w *openalgoWrapper) ReloadSymbolMappings(path string) error {
	return w.adapter.ReloadSymbolMappings(path)
}

// Close 释放资源
func (w *openalgoWrapper) Close() error {
	return w.adapter.Close()
}
