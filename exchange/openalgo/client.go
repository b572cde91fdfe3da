package openalgo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stockmesh/metrics"
)

// DefaultBaseURL OpenAlgo 默认本地地址
const DefaultBaseURL = "http://127.0.0.1:5000"

// APIError OpenAlgo 返回的业务或 HTTP 错误
type APIError struct {
	HTTPStatus int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("OpenAlgo API 错误: HTTP %d: %s", e.HTTPStatus, e.Message)
}

// IsRateLimited 是否触发限流
func (e *APIError) IsRateLimited() bool {
	return e.HTTPStatus == http.StatusTooManyRequests
}

// IsServerError 是否服务端临时错误
func (e *APIError) IsServerError() bool {
	switch e.HTTPStatus {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsNotFound 订单不存在
func (e *APIError) IsNotFound() bool {
	return e.HTTPStatus == http.StatusNotFound
}

// TransportError 网络层错误
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("OpenAlgo 请求失败: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client OpenAlgo REST 客户端
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建 OpenAlgo 客户端
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// post 发送请求，apikey 注入请求体
func (c *Client) post(ctx context.Context, path string, payload map[string]interface{}) (resp *apiResponse, err error) {
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordAPIRequest("openalgo", strings.TrimPrefix(path, "/api/v1/"), status)
	}()

	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["apikey"] = c.apiKey

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal body error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &APIError{HTTPStatus: httpResp.StatusCode, Message: string(respBody)}
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}

	if apiResp.Status == "error" {
		return nil, &APIError{HTTPStatus: httpResp.StatusCode, Message: apiResp.Message}
	}

	return &apiResp, nil
}

// Quotes 获取行情快照
func (c *Client) Quotes(ctx context.Context, symbol, exchange string) (*quoteData, error) {
	resp, err := c.post(ctx, "/api/v1/quotes", map[string]interface{}{
		"symbol":   symbol,
		"exchange": exchange,
	})
	if err != nil {
		return nil, err
	}

	var quote quoteData
	if err := json.Unmarshal(resp.Data, &quote); err != nil {
		return nil, fmt.Errorf("unmarshal data error: %w", err)
	}
	return &quote, nil
}

// Depth 获取盘口深度
func (c *Client) Depth(ctx context.Context, symbol, exchange string) (*depthData, error) {
	resp, err := c.post(ctx, "/api/v1/depth", map[string]interface{}{
		"symbol":   symbol,
		"exchange": exchange,
	})
	if err != nil {
		return nil, err
	}

	var depth depthData
	if err := json.Unmarshal(resp.Data, &depth); err != nil {
		return nil, fmt.Errorf("unmarshal data error: %w", err)
	}
	return &depth, nil
}

// History 获取历史 K线，日期格式 YYYY-MM-DD
func (c *Client) History(ctx context.Context, symbol, exchange, interval, startDate, endDate string) ([]historyCandle, error) {
	resp, err := c.post(ctx, "/api/v1/history", map[string]interface{}{
		"symbol":     symbol,
		"exchange":   exchange,
		"interval":   interval,
		"start_date": startDate,
		"end_date":   endDate,
	})
	if err != nil {
		return nil, err
	}

	var candles []historyCandle
	if err := json.Unmarshal(resp.Data, &candles); err != nil {
		return nil, fmt.Errorf("unmarshal data error: %w", err)
	}
	return candles, nil
}

// PlaceOrder 下单，返回 orderid
func (c *Client) PlaceOrder(ctx context.Context, payload map[string]interface{}) (string, error) {
	resp, err := c.post(ctx, "/api/v1/placeorder", payload)
	if err != nil {
		return "", err
	}

	if resp.OrderID == "" {
		return "", &APIError{HTTPStatus: http.StatusOK, Message: "响应缺少 orderid"}
	}
	return resp.OrderID, nil
}

// OrderStatus 查询订单状态
func (c *Client) OrderStatus(ctx context.Context, orderID, strategy string) (*orderStatusData, error) {
	resp, err := c.post(ctx, "/api/v1/orderstatus", map[string]interface{}{
		"orderid":  orderID,
		"strategy": strategy,
	})
	if err != nil {
		return nil, err
	}

	var status orderStatusData
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal data error: %w", err)
	}
	return &status, nil
}

// CancelOrder 取消订单
func (c *Client) CancelOrder(ctx context.Context, orderID, strategy string) error {
	_, err := c.post(ctx, "/api/v1/cancelorder", map[string]interface{}{
		"orderid":  orderID,
		"strategy": strategy,
	})
	return err
}

// OpenOrders 获取活跃订单
func (c *Client) OpenOrders(ctx context.Context, strategy string) ([]openOrderData, error) {
	resp, err := c.post(ctx, "/api/v1/openorders", map[string]interface{}{
		"strategy": strategy,
	})
	if err != nil {
		return nil, err
	}

	var orders []openOrderData
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &orders); err != nil {
			// 单个对象兼容
			var one openOrderData
			if err2 := json.Unmarshal(resp.Data, &one); err2 != nil {
				return nil, fmt.Errorf("unmarshal data error: %w", err)
			}
			orders = append(orders, one)
		}
	}
	return orders, nil
}

// Funds 获取资金信息
func (c *Client) Funds(ctx context.Context) (*fundsData, error) {
	resp, err := c.post(ctx, "/api/v1/funds", nil)
	if err != nil {
		return nil, err
	}

	var funds fundsData
	if err := json.Unmarshal(resp.Data, &funds); err != nil {
		return nil, fmt.Errorf("unmarshal data error: %w", err)
	}
	return &funds, nil
}
