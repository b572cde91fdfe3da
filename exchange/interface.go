package exchange

import "context"

// IExchange 券商适配器统一接口
//
// 所有适配器（库适配、自建REST、模拟盘）都实现本接口。
// 能力不完整的适配器通过 Capabilities 声明，未声明的能力
// 调用时返回 NotSupported 类别的错误。
type IExchange interface {
	// GetName 获取券商名称
	GetName() string

	// Capabilities 获取能力表
	Capabilities() Capabilities

	// GetMarkets 获取市场目录（按交易对索引）
	GetMarkets() map[string]Market

	// FetchTicker 获取行情快照
	FetchTicker(ctx context.Context, pair string) (*Ticker, error)

	// FetchOHLCV 获取K线
	// since 为零值时返回最近 limit 根；否则返回 since 起的 limit 根
	FetchOHLCV(ctx context.Context, pair, timeframe string, since int64, limit int) ([]Candle, error)

	// FetchOrderBook 获取盘口深度
	FetchOrderBook(ctx context.Context, pair string, limit int) (*OrderBook, error)

	// FetchBalance 获取账户资金
	FetchBalance(ctx context.Context) (Balances, error)

	// PlaceOrder 下单
	PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error)

	// CancelOrder 取消订单
	CancelOrder(ctx context.Context, pair, orderID string) error

	// GetOrder 查询订单
	GetOrder(ctx context.Context, pair, orderID string) (*Order, error)

	// GetOpenOrders 查询未成交订单
	GetOpenOrders(ctx context.Context, pair string) ([]*Order, error)

	// GetOrders 查询全部订单
	// since 为毫秒时间戳，0 表示不过滤
	GetOrders(ctx context.Context, pair string, since int64) ([]*Order, error)

	// GetPositions 查询持仓
	GetPositions(ctx context.Context, pair string) ([]*Position, error)

	// GetFee 获取手续费率（成交金额的小数比例）
	GetFee(pair string) float64

	// GetMinStake 获取单笔最小下单金额（按当前价格折算，衍生品为一手的金额）
	GetMinStake(pair string, price float64) float64

	// GetMaxStake 获取单笔最大下单金额
	GetMaxStake(ctx context.Context, pair string) (float64, error)

	// Close 释放资源
	Close() error
}
