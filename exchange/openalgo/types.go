package openalgo

import (
	"encoding/json"
	"strconv"
	"strings"
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
	Pair         string
	Side         Side
	Type         OrderType
	Quantity     float64
	Price        float64
	Product      string // MIS / CNC / NRML
	TriggerPrice float64
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
	Open       float64
	High       float64
	Low        float64
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

// flexFloat OpenAlgo 部分字段按字符串返回，兼容两种格式
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// apiResponse OpenAlgo 通用响应
type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	OrderID string          `json:"orderid"`
	Data    json.RawMessage `json:"data"`
}

// quoteData /api/v1/quotes 响应数据
type quoteData struct {
	Ask       flexFloat `json:"ask"`
	Bid       flexFloat `json:"bid"`
	LTP       flexFloat `json:"ltp"`
	Open      flexFloat `json:"open"`
	High      flexFloat `json:"high"`
	Low       flexFloat `json:"low"`
	PrevClose flexFloat `json:"prev_close"`
	Volume    flexFloat `json:"volume"`
}

// depthLevel /api/v1/depth 档位
type depthLevel struct {
	Price    flexFloat `json:"price"`
	Quantity flexFloat `json:"quantity"`
}

// depthData /api/v1/depth 响应数据
type depthData struct {
	Asks []depthLevel `json:"asks"`
	Bids []depthLevel `json:"bids"`
}

// historyCandle /api/v1/history 响应数据，时间戳为秒
type historyCandle struct {
	Timestamp int64     `json:"timestamp"`
	Open      flexFloat `json:"open"`
	High      flexFloat `json:"high"`
	Low       flexFloat `json:"low"`
	Close     flexFloat `json:"close"`
	Volume    flexFloat `json:"volume"`
}

// orderStatusData /api/v1/orderstatus 响应数据
type orderStatusData struct {
	OrderStatus  string    `json:"order_status"`
	Symbol       string    `json:"symbol"`
	Action       string    `json:"action"`
	PriceType    string    `json:"pricetype"`
	Quantity     flexFloat `json:"quantity"`
	Price        flexFloat `json:"price"`
	AveragePrice flexFloat `json:"average_price"`
	Timestamp    string    `json:"timestamp"`
}

// openOrderData /api/v1/openorders 响应数据
type openOrderData struct {
	OrderID   string    `json:"orderid"`
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"`
	PriceType string    `json:"pricetype"`
	Quantity  flexFloat `json:"quantity"`
	Price     flexFloat `json:"price"`
	Timestamp string    `json:"timestamp"`
}

// fundsData /api/v1/funds 响应数据
type fundsData struct {
	AvailableCash flexFloat `json:"availablecash"`
	UsedMargin    flexFloat `json:"usedmargin"`
	Collateral    flexFloat `json:"collateral"`
	RealizedPnL   flexFloat `json:"m2mrealized"`
	UnrealizedPnL flexFloat `json:"m2munrealized"`
}
