package openalgo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stockmesh/ratelimit"
	"stockmesh/symbols"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestAdapter 指向本地 httptest 服务的适配器，限流放宽避免测试等待
func newTestAdapter(t *testing.T, handler http.Handler) (*Adapter, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	limiter := ratelimit.NewEndpointLimiter(ratelimit.NewLimiter(ratelimit.Options{
		PerSecond: 1000,
		PerMinute: 100000,
	}))

	adapter := NewAdapter(Config{
		APIKey:          "test-key",
		Host:            server.URL,
		Strategy:        "unittest",
		DefaultExchange: "NSE",
	}, symbols.NewMapper(""), symbols.NewLotSizeManager(""), limiter)

	// 固定在交易时段内（周二 10:30 IST），下单用例不随真实时间变化
	adapter.now = func() time.Time {
		return time.Date(2024, 1, 9, 10, 30, 0, 0, adapter.loc)
	}

	return adapter, server
}

// decodeBody 解析请求体
func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("解析请求体失败: %v", err)
	}
	return body
}

func TestFetchTicker(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody = decodeBody(t, r)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data": map[string]interface{}{
				"ask":    "2501.5",
				"bid":    2500.5,
				"ltp":    2501.0,
				"volume": 123456,
			},
		})
	})

	adapter, _ := newTestAdapter(t, handler)

	ticker, err := adapter.FetchTicker(context.Background(), "RELIANCE/INR")
	if err != nil {
		t.Fatalf("获取行情失败: %v", err)
	}

	if gotPath != "/api/v1/quotes" {
		t.Errorf("请求路径错误: %s", gotPath)
	}
	if gotBody["apikey"] != "test-key" {
		t.Error("apikey 未注入请求体")
	}
	if gotBody["symbol"] != "RELIANCE" || gotBody["exchange"] != "NSE" {
		t.Errorf("符号转换错误: %v / %v", gotBody["symbol"], gotBody["exchange"])
	}
	if ticker.Last != 2501.0 {
		t.Errorf("最新价错误: 期望 2501.0, 得到 %f", ticker.Last)
	}
	if ticker.Ask != 2501.5 || ticker.Bid != 2500.5 {
		t.Errorf("买卖价错误: ask=%f bid=%f", ticker.Ask, ticker.Bid)
	}
	if ticker.BaseVolume != 123456 {
		t.Errorf("成交量错误: %f", ticker.BaseVolume)
	}
}

func TestIndexSymbolMapping(t *testing.T) {
	var gotBody map[string]interface{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody = decodeBody(t, r)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data":   map[string]interface{}{"ltp": 22000.0},
		})
	})

	adapter, _ := newTestAdapter(t, handler)

	if _, err := adapter.FetchTicker(context.Background(), "NIFTY50/INR"); err != nil {
		t.Fatalf("获取指数行情失败: %v", err)
	}

	if gotBody["symbol"] != "NIFTY 50" {
		t.Errorf("指数符号映射错误: 期望 NIFTY 50, 得到 %v", gotBody["symbol"])
	}
}

func TestAPIErrorResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "error",
			"message": "Invalid openalgo apikey",
		})
	})

	adapter, _ := newTestAdapter(t, handler)

	_, err := adapter.FetchTicker(context.Background(), "RELIANCE/INR")
	if err == nil {
		t.Fatal("期望返回错误")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("期望 APIError, 得到: %v", err)
	}
	if apiErr.IsRateLimited() || apiErr.IsServerError() {
		t.Error("业务错误不应判定为限流或服务端错误")
	}
}

func TestRateLimitedResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	adapter, _ := newTestAdapter(t, handler)

	_, err := adapter.FetchTicker(context.Background(), "RELIANCE/INR")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("期望 APIError, 得到: %v", err)
	}
	if !apiErr.IsRateLimited() {
		t.Error("HTTP 429 应判定为限流")
	}
}

func TestServerErrorResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	adapter, _ := newTestAdapter(t, handler)

	_, err := adapter.FetchTicker(context.Background(), "RELIANCE/INR")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("期望 APIError, 得到: %v", err)
	}
	if !apiErr.IsServerError() {
		t.Error("HTTP 503 应判定为服务端错误")
	}
}

func TestTransportError(t *testing.T) {
	adapter, server := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := adapter.FetchTicker(context.Background(), "RELIANCE/INR")

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("期望 TransportError, 得到: %v", err)
	}
}

func TestFetchOHLCV(t *testing.T) {
	var gotBody map[string]interface{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody = decodeBody(t, r)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data": []map[string]interface{}{
				{"timestamp": 1700000000, "open": 100, "high": 105, "low": 99, "close": 104, "volume": 1000},
				{"timestamp": 1700000060, "open": 104, "high": 106, "low": 103, "close": 105, "volume": 800},
				{"timestamp": 1700000120, "open": 105, "high": 107, "low": 104, "close": 106, "volume": 900},
			},
		})
	})

	adapter, _ := newTestAdapter(t, handler)

	candles, err := adapter.FetchOHLCV(context.Background(), "TCS/INR", "1d", 0, 2)
	if err != nil {
		t.Fatalf("获取 K线失败: %v", err)
	}

	if gotBody["interval"] != "D" {
		t.Errorf("日线周期应映射为 D, 得到 %v", gotBody["interval"])
	}
	if len(candles) != 2 {
		t.Fatalf("limit 截断错误: 期望 2 根, 得到 %d", len(candles))
	}
	if candles[0].Timestamp != 1700000060000 {
		t.Errorf("时间戳应转换为毫秒: %d", candles[0].Timestamp)
	}
	if candles[1].Close != 106 {
		t.Errorf("收盘价错误: %f", candles[1].Close)
	}
}

func TestFetchOHLCVUnsupportedTimeframe(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	if _, err := adapter.FetchOHLCV(context.Background(), "TCS/INR", "2h", 0, 10); err == nil {
		t.Fatal("不支持的周期应返回错误")
	}
}

func TestPlaceOrderMarket(t *testing.T) {
	var gotBody map[string]interface{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody = decodeBody(t, r)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "success",
			"orderid": "240831000001",
		})
	})

	adapter, _ := newTestAdapter(t, handler)

	order, err := adapter.PlaceOrder(context.Background(), &OrderRequest{
		Pair:     "RELIANCE/INR",
		Side:     SideBuy,
		Type:     OrderTypeMarket,
		Quantity: 10,
	})
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}

	if order.OrderID != "240831000001" {
		t.Errorf("订单 ID 错误: %s", order.OrderID)
	}
	if order.Status != OrderStatusOpen {
		t.Errorf("新订单状态应为 OPEN: %s", order.Status)
	}
	if gotBody["action"] != "BUY" || gotBody["pricetype"] != "MARKET" {
		t.Errorf("下单参数错误: %v", gotBody)
	}
	if gotBody["product"] != "MIS" {
		t.Errorf("默认 product 应为 MIS: %v", gotBody["product"])
	}
	if gotBody["quantity"] != float64(10) {
		t.Errorf("数量错误: %v", gotBody["quantity"])
	}
	if gotBody["price"] != "0" {
		t.Errorf("市价单价格应为 0: %v", gotBody["price"])
	}
}

func TestPlaceOrderLotNormalization(t *testing.T) {
	var gotBody map[string]interface{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody = decodeBody(t, r)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "success",
			"orderid": "240831000002",
		})
	})

	adapter, _ := newTestAdapter(t, handler)

	// NIFTY 手数 25，60 向下取整为 50
	order, err := adapter.PlaceOrder(context.Background(), &OrderRequest{
		Pair:     "NIFTY25JAN24000CE/INR",
		Side:     SideBuy,
		Type:     OrderTypeMarket,
		Quantity: 60,
	})
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}
	if gotBody["quantity"] != float64(50) {
		t.Errorf("手数规整错误: 期望 50, 得到 %v", gotBody["quantity"])
	}
	if order.Quantity != 50 {
		t.Errorf("订单数量错误: %f", order.Quantity)
	}

	// 不足一手应拒绝
	if _, err := adapter.PlaceOrder(context.Background(), &OrderRequest{
		Pair:     "NIFTY25JAN24000CE/INR",
		Side:     SideBuy,
		Type:     OrderTypeMarket,
		Quantity: 10,
	}); err == nil {
		t.Fatal("不足一手应返回错误")
	}
}

func TestPlaceOrderFixedQty(t *testing.T) {
	var gotBody map[string]interface{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody = decodeBody(t, r)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "success",
			"orderid": "240831000003",
		})
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	limiter := ratelimit.NewEndpointLimiter(ratelimit.NewLimiter(ratelimit.Options{PerSecond: 1000}))
	adapter := NewAdapter(Config{
		APIKey:   "test-key",
		Host:     server.URL,
		FixedQty: 5,
	}, symbols.NewMapper(""), symbols.NewLotSizeManager(""), limiter)
	adapter.now = func() time.Time {
		return time.Date(2024, 1, 9, 10, 30, 0, 0, adapter.loc)
	}

	if _, err := adapter.PlaceOrder(context.Background(), &OrderRequest{
		Pair:     "RELIANCE/INR",
		Side:     SideSell,
		Type:     OrderTypeMarket,
		Quantity: 100,
	}); err != nil {
		t.Fatalf("下单失败: %v", err)
	}

	if gotBody["quantity"] != float64(5) {
		t.Errorf("固定数量应覆盖请求数量: %v", gotBody["quantity"])
	}
}

func TestGetOrderStatusMapping(t *testing.T) {
	tests := []struct {
		apiStatus string
		want      OrderStatus
	}{
		{"complete", OrderStatusFilled},
		{"open", OrderStatusOpen},
		{"pending", OrderStatusOpen},
		{"cancelled", OrderStatusCanceled},
		{"rejected", OrderStatusRejected},
	}

	for _, tt := range tests {
		status := tt.apiStatus
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "success",
				"data": map[string]interface{}{
					"order_status":  status,
					"action":        "BUY",
					"pricetype":     "LIMIT",
					"quantity":      "10",
					"price":         "2500",
					"average_price": "2499.5",
				},
			})
		})

		adapter, _ := newTestAdapter(t, handler)

		order, err := adapter.GetOrder(context.Background(), "RELIANCE/INR", "oid-1")
		if err != nil {
			t.Fatalf("查询订单失败 (%s): %v", tt.apiStatus, err)
		}
		if order.Status != tt.want {
			t.Errorf("状态映射错误: %s -> %s, 期望 %s", tt.apiStatus, order.Status, tt.want)
		}
		if tt.want == OrderStatusFilled {
			if order.FilledQty != 10 || order.RemainQty != 0 {
				t.Errorf("成交数量错误: filled=%f remain=%f", order.FilledQty, order.RemainQty)
			}
			if order.AvgPrice != 2499.5 {
				t.Errorf("成交均价错误: %f", order.AvgPrice)
			}
		}
	}
}

func TestCancelOrder(t *testing.T) {
	var gotBody map[string]interface{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/placeorder" {
			decodeBody(t, r)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":  "success",
				"orderid": "oid-cancel",
			})
			return
		}
		gotBody = decodeBody(t, r)
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "success"})
	})

	adapter, _ := newTestAdapter(t, handler)

	if _, err := adapter.PlaceOrder(context.Background(), &OrderRequest{
		Pair: "TCS/INR", Side: SideBuy, Type: OrderTypeLimit, Quantity: 5, Price: 3500,
	}); err != nil {
		t.Fatalf("下单失败: %v", err)
	}

	if err := adapter.CancelOrder(context.Background(), "TCS/INR", "oid-cancel"); err != nil {
		t.Fatalf("撤单失败: %v", err)
	}

	if gotBody["orderid"] != "oid-cancel" {
		t.Errorf("撤单参数错误: %v", gotBody)
	}
	if orders := adapter.cachedOpenOrders(""); len(orders) != 0 {
		t.Errorf("撤单后缓存应为空: %d", len(orders))
	}
}

func TestGetOpenOrdersFallbackToCache(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/placeorder" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":  "success",
				"orderid": "oid-cache",
			})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	adapter, _ := newTestAdapter(t, handler)

	if _, err := adapter.PlaceOrder(context.Background(), &OrderRequest{
		Pair: "INFY/INR", Side: SideBuy, Type: OrderTypeLimit, Quantity: 3, Price: 1500,
	}); err != nil {
		t.Fatalf("下单失败: %v", err)
	}

	orders, err := adapter.GetOpenOrders(context.Background(), "INFY/INR")
	if err != nil {
		t.Fatalf("接口失败时应回退缓存: %v", err)
	}
	if len(orders) != 1 || orders[0].OrderID != "oid-cache" {
		t.Errorf("缓存订单错误: %+v", orders)
	}
}

func TestFetchBalance(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data": map[string]interface{}{
				"availablecash": "95000.50",
				"usedmargin":    "5000.25",
			},
		})
	})

	adapter, _ := newTestAdapter(t, handler)

	balances, err := adapter.FetchBalance(context.Background())
	if err != nil {
		t.Fatalf("获取资金失败: %v", err)
	}

	inr := balances["INR"]
	if inr == nil {
		t.Fatal("缺少 INR 资金记录")
	}
	if inr.Free != 95000.50 || inr.Used != 5000.25 {
		t.Errorf("资金数据错误: free=%f used=%f", inr.Free, inr.Used)
	}
	if inr.Total != inr.Free+inr.Used {
		t.Errorf("总额应等于可用加占用: %f", inr.Total)
	}
}

func TestIsMarketOpen(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"周二开盘前", time.Date(2024, 1, 9, 9, 14, 0, 0, adapter.loc), false},
		{"周二开盘时刻", time.Date(2024, 1, 9, 9, 15, 0, 0, adapter.loc), true},
		{"周二盘中", time.Date(2024, 1, 9, 12, 0, 0, 0, adapter.loc), true},
		{"周二收盘时刻", time.Date(2024, 1, 9, 15, 30, 0, 0, adapter.loc), true},
		{"周二收盘后", time.Date(2024, 1, 9, 15, 31, 0, 0, adapter.loc), false},
		{"周六", time.Date(2024, 1, 6, 12, 0, 0, 0, adapter.loc), false},
		{"周日", time.Date(2024, 1, 7, 12, 0, 0, 0, adapter.loc), false},
	}

	for _, tt := range tests {
		at := tt.at
		adapter.now = func() time.Time { return at }
		if got := adapter.IsMarketOpen(); got != tt.want {
			t.Errorf("%s: IsMarketOpen() = %v, 期望 %v", tt.name, got, tt.want)
		}
	}
}

func TestPlaceOrderOutsideMarketHours(t *testing.T) {
	requested := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = true
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "success",
			"orderid": "oid-closed",
		})
	})

	adapter, _ := newTestAdapter(t, handler)
	// 周六中午
	adapter.now = func() time.Time {
		return time.Date(2024, 1, 6, 12, 0, 0, 0, adapter.loc)
	}

	_, err := adapter.PlaceOrder(context.Background(), &OrderRequest{
		Pair:     "RELIANCE/INR",
		Side:     SideBuy,
		Type:     OrderTypeMarket,
		Quantity: 10,
	})
	if !errors.Is(err, ErrMarketClosed) {
		t.Fatalf("非交易时段下单应返回 ErrMarketClosed, 得到: %v", err)
	}
	if requested {
		t.Error("非交易时段不应发送下单请求")
	}
}

func TestReloadSymbolMappings(t *testing.T) {
	var gotBody map[string]interface{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody = decodeBody(t, r)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data":   map[string]interface{}{"ltp": 950.0},
		})
	})

	adapter, _ := newTestAdapter(t, handler)

	mappingFile := filepath.Join(t.TempDir(), "mappings.json")
	data := `{"TATAMOTORS":{"openalgo":{"symbol":"TATAMOTORS-EQ","exchange":"NSE"}}}`
	if err := os.WriteFile(mappingFile, []byte(data), 0644); err != nil {
		t.Fatalf("写入映射文件失败: %v", err)
	}

	if err := adapter.ReloadSymbolMappings(mappingFile); err != nil {
		t.Fatalf("重新加载符号映射失败: %v", err)
	}

	if _, err := adapter.FetchTicker(context.Background(), "TATAMOTORS/INR"); err != nil {
		t.Fatalf("获取行情失败: %v", err)
	}
	if gotBody["symbol"] != "TATAMOTORS-EQ" {
		t.Errorf("热加载后的映射未生效: %v", gotBody["symbol"])
	}
}

func TestRateLimitWaitRecorded(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data":   map[string]interface{}{"ltp": 100.0},
		})
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	// 最小间隔强制第二次请求等待
	limiter := ratelimit.NewEndpointLimiter(ratelimit.NewLimiter(ratelimit.Options{
		MinInterval: 20 * time.Millisecond,
	}))
	adapter := NewAdapter(Config{
		APIKey: "test-key",
		Host:   server.URL,
	}, symbols.NewMapper(""), symbols.NewLotSizeManager(""), limiter)

	for i := 0; i < 2; i++ {
		if _, err := adapter.FetchTicker(context.Background(), "RELIANCE/INR"); err != nil {
			t.Fatalf("获取行情失败: %v", err)
		}
	}

	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer,
		"stockmesh_rate_limit_hits_total", "stockmesh_rate_limit_wait_seconds_total")
	if err != nil {
		t.Fatalf("采集指标失败: %v", err)
	}
	if n == 0 {
		t.Error("限流等待未计入指标")
	}
}

func TestQuoteStreamRestart(t *testing.T) {
	stream := NewQuoteStream("http://127.0.0.1:1", "test-key")

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // 连接协程立即退出，只验证启停状态机

	if err := stream.Start(ctx, nil, func(*Ticker) {}); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	if err := stream.Start(ctx, nil, func(*Ticker) {}); err == nil {
		t.Fatal("重复启动应返回错误")
	}
	stream.Stop()

	// 停止后可再次启动
	if err := stream.Start(ctx, nil, func(*Ticker) {}); err != nil {
		t.Fatalf("停止后再启动失败: %v", err)
	}
	stream.Stop()
}

func TestWSURLFromHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"http://127.0.0.1:5000", "ws://127.0.0.1:8765"},
		{"https://algo.example.com", "wss://algo.example.com:8765"},
		{"", "ws://127.0.0.1:8765"},
	}

	for _, tt := range tests {
		if got := wsURLFromHost(tt.host); got != tt.want {
			t.Errorf("wsURLFromHost(%q) = %q, 期望 %q", tt.host, got, tt.want)
		}
	}
}
