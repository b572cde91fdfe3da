package exchange

import "time"

// Side 订单方向
type Side string

const (
	// SideBuy 买入
	SideBuy Side = "BUY"
	// SideSell 卖出
	SideSell Side = "SELL"
)

// OrderType 订单类型
type OrderType string

const (
	// OrderTypeMarket 市价单
	OrderTypeMarket OrderType = "MARKET"
	// OrderTypeLimit 限价单
	OrderTypeLimit OrderType = "LIMIT"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	// OrderStatusOpen 未成交
	OrderStatusOpen OrderStatus = "OPEN"
	// OrderStatusFilled 已成交
	OrderStatusFilled OrderStatus = "FILLED"
	// OrderStatusCanceled 已取消
	OrderStatusCanceled OrderStatus = "CANCELED"
	// OrderStatusRejected 已拒绝
	OrderStatusRejected OrderStatus = "REJECTED"
)

// ProductType 产品类型（印度市场交易产品）
type ProductType string

const (
	// ProductMIS 日内保证金交易
	ProductMIS ProductType = "MIS"
	// ProductCNC 现货交割
	ProductCNC ProductType = "CNC"
	// ProductNRML 普通保证金（衍生品持仓过夜）
	ProductNRML ProductType = "NRML"
)

// OrderRequest 下单请求
type OrderRequest struct {
	Pair      string      // 内部交易对格式，如 RELIANCE/INR
	Side      Side        // 买卖方向
	Type      OrderType   // 订单类型
	Quantity  float64     // 数量（股数）
	Price     float64     // 限价单价格，市价单忽略
	Product   ProductType // 产品类型，默认 MIS
	ClientRef string      // 客户端引用ID（可选）
}

// Order 订单
type Order struct {
	OrderID    string      `json:"order_id"`
	ClientRef  string      `json:"client_ref,omitempty"`
	Pair       string      `json:"pair"`
	Side       Side        `json:"side"`
	Type       OrderType   `json:"type"`
	Price      float64     `json:"price"`      // 请求价格
	AvgPrice   float64     `json:"avg_price"`  // 成交均价（含滑点）
	Quantity   float64     `json:"quantity"`   // 请求数量
	FilledQty  float64     `json:"filled_qty"` // 已成交数量
	RemainQty  float64     `json:"remain_qty"` // 剩余数量
	Cost       float64     `json:"cost"`       // 成交金额（价格×数量）
	Commission float64     `json:"commission"` // 手续费
	Status     OrderStatus `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Ticker 行情快照
type Ticker struct {
	Pair       string    `json:"pair"`
	Last       float64   `json:"last"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Open       float64   `json:"open"`
	Close      float64   `json:"close"`
	BaseVolume float64   `json:"base_volume"`
	Timestamp  time.Time `json:"timestamp"`
}

// Candle K线（OHLCV）
type Candle struct {
	Timestamp time.Time `json:"timestamp"` // 桶起始时间
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PriceLevel 盘口价位
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook 盘口深度
type OrderBook struct {
	Pair      string       `json:"pair"`
	Bids      []PriceLevel `json:"bids"` // 买盘，价格降序
	Asks      []PriceLevel `json:"asks"` // 卖盘，价格升序
	Timestamp time.Time    `json:"timestamp"`
}

// Balance 单币种资金
type Balance struct {
	Free  float64 `json:"free"`  // 可用
	Used  float64 `json:"used"`  // 冻结
	Total float64 `json:"total"` // 总额 = Free + Used
}

// Balances 账户资金，按币种索引
type Balances map[string]Balance

// Position 持仓
type Position struct {
	Pair       string    `json:"pair"`
	Quantity   float64   `json:"quantity"`    // 持仓数量
	AvgPrice   float64   `json:"avg_price"`   // 持仓均价
	LastPrice  float64   `json:"last_price"`  // 最新价格
	UnrealPnL  float64   `json:"unreal_pnl"`  // 浮动盈亏
	UpdateTime time.Time `json:"update_time"`
}

// Market 市场条目
type Market struct {
	Pair    string `json:"pair"`
	Base    string `json:"base"`
	Quote   string `json:"quote"`
	Type    string `json:"type"`     // EQUITY/INDEX/FUTURES/CALL_OPTION/PUT_OPTION
	LotSize int    `json:"lot_size"` // 衍生品一手数量，股票为1
	Active  bool   `json:"active"`
}

// Capabilities 适配器能力表
//
// 调用方在使用某项能力前应先探测，不支持的能力调用会返回 NotSupported 错误。
type Capabilities struct {
	FetchTicker     bool
	FetchOHLCV      bool
	FetchOrderBook  bool
	FetchBalance    bool
	CreateOrder     bool
	CancelOrder     bool
	FetchOrder      bool
	FetchOrders     bool
	FetchOpenOrders bool
	FetchPositions  bool
	WatchQuotes     bool // 实时行情推送
}

// Supports 按端点名探测能力
func (c Capabilities) Supports(endpoint string) bool {
	switch endpoint {
	case "fetchTicker":
		return c.FetchTicker
	case "fetchOHLCV":
		return c.FetchOHLCV
	case "fetchOrderBook":
		return c.FetchOrderBook
	case "fetchBalance":
		return c.FetchBalance
	case "createOrder":
		return c.CreateOrder
	case "cancelOrder":
		return c.CancelOrder
	case "fetchOrder":
		return c.FetchOrder
	case "fetchOrders":
		return c.FetchOrders
	case "fetchOpenOrders":
		return c.FetchOpenOrders
	case "fetchPositions":
		return c.FetchPositions
	case "watchQuotes":
		return c.WatchQuotes
	default:
		return false
	}
}

// TimeframeDuration 时间周期对应的时长
func TimeframeDuration(timeframe string) (time.Duration, bool) {
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
