package paperbroker

import "time"

// 为了避免循环导入，在这里定义需要的类型

// Side 订单方向
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
	Pair      string
	Side      Side
	Type      OrderType
	Quantity  float64
	Price     float64
	ClientRef string
}

// Order 订单
type Order struct {
	OrderID    string
	ClientRef  string
	Pair       string
	Side       Side
	Type       OrderType
	Price      float64
	AvgPrice   float64
	Quantity   float64
	FilledQty  float64
	RemainQty  float64
	Cost       float64
	Commission float64
	Status     OrderStatus
	Timestamp  time.Time
}

// Ticker 行情快照
type Ticker struct {
	Pair       string
	Last       float64
	Bid        float64
	Ask        float64
	High       float64
	Low        float64
	Open       float64
	Close      float64
	BaseVolume float64
	Timestamp  time.Time
}

// Candle K线
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// PriceLevel 盘口价位
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// OrderBook 盘口深度
type OrderBook struct {
	Pair      string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// Balance 单币种资金
type Balance struct {
	Free  float64
	Used  float64
	Total float64
}

// Position 持仓
type Position struct {
	Pair       string
	Quantity   float64
	AvgPrice   float64
	Cost       float64
	UpdateTime time.Time
}

// Trade 成交记录
type Trade struct {
	OrderID    string
	Pair       string
	Side       Side
	Quantity   float64
	Price      float64
	Commission float64
	Timestamp  time.Time
}
