package exchange

import (
	"context"
	"errors"
	"time"

	"stockmesh/exchange/binance"
	"stockmesh/symbols"

	"github.com/adshao/go-binance/v2/common"
)

// binanceWrapper 币安包装器
type binanceWrapper struct {
	adapter *binance.Adapter
	markets map[string]Market
}

// 币安现货默认费率与最小下单金额（USDT 计价）
const (
	binanceFeeRate     = 0.001
	binanceMinNotional = 10.0
)

// translateBinanceError 币安 SDK 错误按错误码转换为带类别的错误
func translateBinanceError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -2010: // NEW_ORDER_REJECTED，余额不足
			return WrapError(KindInsufficientFunds, "binance", err, "资金不足")
		case -2011, -2013: // 未知订单 / 订单不存在
			return WrapError(KindOrderNotFound, "binance", err, "订单不存在")
		case -1003, -1015: // 请求过多 / 下单过快
			return WrapError(KindDDoSProtection, "binance", err, "触发限流")
		case -1013, -1111, -1121: // 过滤器拒绝 / 精度错误 / 无效交易对
			return WrapError(KindInvalidOrder, "binance", err, "无效订单")
		default:
			return WrapError(KindExchange, "binance", err, "业务错误 (code=%d)", apiErr.Code)
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return WrapError(KindTemporary, "binance", err, "网络错误")
}

// GetName 获取券商名称
func (w *binanceWrapper) GetName() string {
	return w.adapter.GetName()
}

// Capabilities 获取能力表
//
// 现货账户无独立持仓概念，持仓体现在资产余额中。
func (w *binanceWrapper) Capabilities() Capabilities {
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
	}
}

// GetMarkets 获取市场目录
func (w *binanceWrapper) GetMarkets() map[string]Market {
	return w.markets
}

// FetchTicker 获取行情快照
func (w *binanceWrapper) FetchTicker(ctx context.Context, pair string) (*Ticker, error) {
	ticker, err := w.adapter.FetchTicker(ctx, pair)
	if err != nil {
		return nil, translateBinanceError(err)
	}

	return &Ticker{
		Pair:       ticker.Symbol,
		Last:       ticker.Last,
		Bid:        ticker.Bid,
		Ask:        ticker.Ask,
		BaseVolume: ticker.BaseVolume,
		Timestamp:  time.UnixMilli(ticker.Timestamp),
	}, nil
}

// FetchOHLCV 获取K线
func (w *binanceWrapper) FetchOHLCV(ctx context.Context, pair, timeframe string, since int64, limit int) ([]Candle, error) {
	candles, err := w.adapter.FetchOHLCV(ctx, pair, timeframe, since, limit)
	if err != nil {
		return nil, translateBinanceError(err)
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
func (w *binanceWrapper) FetchOrderBook(ctx context.Context, pair string, limit int) (*OrderBook, error) {
	book, err := w.adapter.FetchOrderBook(ctx, pair, limit)
	if err != nil {
		return nil, translateBinanceError(err)
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
func (w *binanceWrapper) FetchBalance(ctx context.Context) (Balances, error) {
	balances, err := w.adapter.FetchBalance(ctx)
	if err != nil {
		return nil, translateBinanceError(err)
	}

	result := make(Balances, len(balances))
	for currency, bal := range balances {
		result[currency] = Balance{Free: bal.Free, Used: bal.Used, Total: bal.Total}
	}
	return result, nil
}

// convertBinanceOrder 币安订单转通用订单
func convertBinanceOrder(order *binance.Order) *Order {
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
func (w *binanceWrapper) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	order, err := w.adapter.PlaceOrder(ctx, &binance.OrderRequest{
		Pair:     req.Pair,
		Side:     binance.Side(req.Side),
		Type:     binance.OrderType(req.Type),
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		return nil, translateBinanceError(err)
	}
	return convertBinanceOrder(order), nil
}

// CancelOrder 取消订单
func (w *binanceWrapper) CancelOrder(ctx context.Context, pair, orderID string) error {
	return translateBinanceError(w.adapter.CancelOrder(ctx, pair, orderID))
}

// GetOrder 查询订单
func (w *binanceWrapper) GetOrder(ctx context.Context, pair, orderID string) (*Order, error) {
	order, err := w.adapter.GetOrder(ctx, pair, orderID)
	if err != nil {
		return nil, translateBinanceError(err)
	}
	return convertBinanceOrder(order), nil
}

// GetOpenOrders 查询未成交订单
func (w *binanceWrapper) GetOpenOrders(ctx context.Context, pair string) ([]*Order, error) {
	orders, err := w.adapter.GetOpenOrders(ctx, pair)
	if err != nil {
		return nil, translateBinanceError(err)
	}

	result := make([]*Order, len(orders))
	for i, order := range orders {
		result[i] = convertBinanceOrder(order)
	}
	return result, nil
}

// GetOrders 查询全部订单
func (w *binanceWrapper) GetOrders(ctx context.Context, pair string, since int64) ([]*Order, error) {
	orders, err := w.adapter.GetOrders(ctx, pair, since)
	if err != nil {
		return nil, translateBinanceError(err)
	}

	result := make([]*Order, len(orders))
	for i, order := range orders {
		result[i] = convertBinanceOrder(order)
	}
	return result, nil
}

// GetPositions 查询持仓
func (w *binanceWrapper) GetPositions(ctx context.Context, pair string) ([]*Position, error) {
	return nil, NewError(KindNotSupported, "binance", "现货不支持持仓查询")
}

// GetFee 获取手续费率
func (w *binanceWrapper) GetFee(pair string) float64 {
	return binanceFeeRate
}

// GetMinStake 获取最小下单金额（交易所最小名义价值）
func (w *binanceWrapper) GetMinStake(pair string, price float64) float64 {
	return binanceMinNotional
}

// GetMaxStake 获取最大下单金额（计价资产可用余额）
func (w *binanceWrapper) GetMaxStake(ctx context.Context, pair string) (float64, error) {
	balances, err := w.FetchBalance(ctx)
	if err != nil {
		return 0, err
	}

	_, quote := symbols.SplitPair(pair)
	return balances[quote].Free, nil
}

// Close 释放资源
func (w *binanceWrapper) Close() error {
	return w.adapter.Close()
}
