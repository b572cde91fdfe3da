package exchange

import (
	"context"
	"errors"

	"stockmesh/exchange/paperbroker"
)

// paperBrokerWrapper 模拟盘包装器
type paperBrokerWrapper struct {
	broker  *paperbroker.PaperBroker
	markets map[string]Market
}

// translatePaperError 模拟盘错误转换为带类别的错误
func translatePaperError(err error) error {
	if err == nil {
		return nil
	}

	var insufficientErr *paperbroker.ErrInsufficientFunds
	if errors.As(err, &insufficientErr) {
		return WrapError(KindInsufficientFunds, "paperbroker", err, "资金不足")
	}

	var invalidErr *paperbroker.ErrInvalidOrder
	if errors.As(err, &invalidErr) {
		return WrapError(KindInvalidOrder, "paperbroker", err, "无效订单")
	}

	var notFoundErr *paperbroker.ErrOrderNotFound
	if errors.As(err, &notFoundErr) {
		return WrapError(KindOrderNotFound, "paperbroker", err, "订单不存在")
	}

	return WrapError(KindExchange, "paperbroker", err, "模拟盘错误")
}

// GetName 获取券商名称
func (w *paperBrokerWrapper) GetName() string {
	return w.broker.GetName()
}

// Capabilities 获取能力表
func (w *paperBrokerWrapper) Capabilities() Capabilities {
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
		FetchPositions:  true,
	}
}

// GetMarkets 获取市场目录
func (w *paperBrokerWrapper) GetMarkets() map[string]Market {
	return w.markets
}

// FetchTicker 获取行情快照
func (w *paperBrokerWrapper) FetchTicker(ctx context.Context, pair string) (*Ticker, error) {
	ticker, err := w.broker.FetchTicker(ctx, pair)
	if err != nil {
		return nil, translatePaperError(err)
	}

	return &Ticker{
		Pair:       ticker.Pair,
		Last:       ticker.Last,
		Bid:        ticker.Bid,
		Ask:        ticker.Ask,
		High:       ticker.High,
		Low:        ticker.Low,
		Open:       ticker.Open,
		Close:      ticker.Close,
		BaseVolume: ticker.BaseVolume,
		Timestamp:  ticker.Timestamp,
	}, nil
}

// FetchOHLCV 获取K线
func (w *paperBrokerWrapper) FetchOHLCV(ctx context.Context, pair, timeframe string, since int64, limit int) ([]Candle, error) {
	candles, err := w.broker.FetchOHLCV(ctx, pair, timeframe, since, limit)
	if err != nil {
		return nil, translatePaperError(err)
	}

	result := make([]Candle, len(candles))
	for i, c := range candles {
		result[i] = Candle{
			Timestamp: c.Timestamp,
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
func (w *paperBrokerWrapper) FetchOrderBook(ctx context.Context, pair string, limit int) (*OrderBook, error) {
	book, err := w.broker.FetchOrderBook(ctx, pair, limit)
	if err != nil {
		return nil, translatePaperError(err)
	}

	result := &OrderBook{
		Pair:      book.Pair,
		Timestamp: book.Timestamp,
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
func (w *paperBrokerWrapper) FetchBalance(ctx context.Context) (Balances, error) {
	balances, err := w.broker.FetchBalance(ctx)
	if err != nil {
		return nil, translatePaperError(err)
	}

	result := make(Balances, len(balances))
	for currency, bal := range balances {
		result[currency] = Balance{Free: bal.Free, Used: bal.Used, Total: bal.Total}
	}
	return result, nil
}

// convertPaperOrder 模拟盘订单转通用订单
func convertPaperOrder(order *paperbroker.Order) *Order {
	return &Order{
		OrderID:    order.OrderID,
		ClientRef:  order.ClientRef,
		Pair:       order.Pair,
		Side:       Side(order.Side),
		Type:       OrderType(order.Type),
		Price:      order.Price,
		AvgPrice:   order.AvgPrice,
		Quantity:   order.Quantity,
		FilledQty:  order.FilledQty,
		RemainQty:  order.RemainQty,
		Cost:       order.Cost,
		Commission: order.Commission,
		Status:     OrderStatus(order.Status),
		Timestamp:  order.Timestamp,
	}
}

// PlaceOrder 下单
func (w *paperBrokerWrapper) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	order, err := w.broker.PlaceOrder(ctx, &paperbroker.OrderRequest{
		Pair:      req.Pair,
		Side:      paperbroker.Side(req.Side),
		Type:      paperbroker.OrderType(req.Type),
		Quantity:  req.Quantity,
		Price:     req.Price,
		ClientRef: req.ClientRef,
	})
	if err != nil {
		return nil, translatePaperError(err)
	}
	return convertPaperOrder(order), nil
}

// CancelOrder 取消订单
func (w *paperBrokerWrapper) CancelOrder(ctx context.Context, pair, orderID string) error {
	return translatePaperError(w.broker.CancelOrder(ctx, pair, orderID))
}

// GetOrder 查询订单
func (w *paperBrokerWrapper) GetOrder(ctx context.Context, pair, orderID string) (*Order, error) {
	order, err := w.broker.GetOrder(ctx, pair, orderID)
	if err != nil {
		return nil, translatePaperError(err)
	}
	return convertPaperOrder(order), nil
}

// GetOpenOrders 查询未成交订单
func (w *paperBrokerWrapper) GetOpenOrders(ctx context.Context, pair string) ([]*Order, error) {
	orders, err := w.broker.GetOpenOrders(ctx, pair)
	if err != nil {
		return nil, translatePaperError(err)
	}

	result := make([]*Order, len(orders))
	for i, order := range orders {
		result[i] = convertPaperOrder(order)
	}
	return result, nil
}

// GetOrders 查询全部订单
func (w *paperBrokerWrapper) GetOrders(ctx context.Context, pair string, since int64) ([]*Order, error) {
	orders, err := w.broker.GetOrders(ctx, pair, since)
	if err != nil {
		return nil, translatePaperError(err)
	}

	result := make([]*Order, len(orders))
	for i, order := range orders {
		result[i] = convertPaperOrder(order)
	}
	return result, nil
}

// GetFee 获取手续费率
func (w *paperBrokerWrapper) GetFee(pair string) float64 {
	return w.broker.CommissionRate()
}

// GetMinStake 获取最小下单金额
func (w *paperBrokerWrapper) GetMinStake(pair string, price float64) float64 {
	return minStakeFor(w.markets, pair, price)
}

// GetMaxStake 获取最大下单金额（可用资金）
func (w *paperBrokerWrapper) GetMaxStake(ctx context.Context, pair string) (float64, error) {
	balances, err := w.FetchBalance(ctx)
	if err != nil {
		return 0, err
	}
	return balances[w.broker.QuoteCurrency()].Free, nil
}

// GetPositions 查询持仓
func (w *paperBrokerWrapper) GetPositions(ctx context.Context, pair string) ([]*Position, error) {
	positions, err := w.broker.GetPositions(ctx, pair)
	if err != nil {
		return nil, translatePaperError(err)
	}

	result := make([]*Position, len(positions))
	for i, pos := range positions {
		result[i] = &Position{
			Pair:       pos.Pair,
			Quantity:   pos.Quantity,
			AvgPrice:   pos.AvgPrice,
			UpdateTime: pos.UpdateTime,
		}
	}
	return result, nil
}

// Reset 重置模拟盘状态
func (w *paperBrokerWrapper) Reset() error {
	return translatePaperError(w.broker.Reset())
}

// Close 释放资源
func (w *paperBrokerWrapper) Close() error {
	return w.broker.Close()
}
