package openalgo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"stockmesh/logger"
	"stockmesh/metrics"

	"github.com/gorilla/websocket"
)

// wsInstrument WebSocket 订阅标的
type wsInstrument struct {
	Pair     string
	Symbol   string
	Exchange string
}

// QuoteStream OpenAlgo 行情 WebSocket 管理器
type QuoteStream struct {
	wsURL     string
	apiKey    string
	conn      *websocket.Conn
	mu        sync.RWMutex
	stopCh    chan struct{}
	callback  func(*Ticker)
	pairs     map[string]string // symbol:exchange -> pair
	isRunning bool
}

// NewQuoteStream 创建行情 WebSocket 管理器
func NewQuoteStream(host, apiKey string) *QuoteStream {
	return &QuoteStream{
		wsURL:  wsURLFromHost(host),
		apiKey: apiKey,
		stopCh: make(chan struct{}),
		pairs:  make(map[string]string),
	}
}

// wsURLFromHost OpenAlgo WebSocket 默认在 8765 端口
func wsURLFromHost(host string) string {
	if host == "" {
		host = DefaultBaseURL
	}

	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		return "ws://127.0.0.1:8765"
	}

	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}

	hostname := u.Hostname()
	return fmt.Sprintf("%s://%s:8765", scheme, hostname)
}

// Start 启动行情推送，Stop 之后可再次启动
func (q *QuoteStream) Start(ctx context.Context, instruments []wsInstrument, callback func(*Ticker)) error {
	q.mu.Lock()
	if q.isRunning {
		q.mu.Unlock()
		return fmt.Errorf("quote websocket already running")
	}
	q.callback = callback
	for _, inst := range instruments {
		q.pairs[inst.Symbol+":"+inst.Exchange] = inst.Pair
	}
	// Stop 会关闭 stopCh，重新启动时换新的
	stopCh := make(chan struct{})
	q.stopCh = stopCh
	q.isRunning = true
	q.mu.Unlock()

	go q.connect(ctx, instruments, stopCh)
	return nil
}

// Stop 停止行情推送
func (q *QuoteStream) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isRunning {
		return
	}

	q.isRunning = false
	close(q.stopCh)

	if q.conn != nil {
		q.conn.Close()
	}
	metrics.SetWebSocketConnected("openalgo", false)
}

// connect 连接并自动重连
func (q *QuoteStream) connect(ctx context.Context, instruments []wsInstrument, stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, q.wsURL, nil)
		if err != nil {
			logger.Error("OpenAlgo WebSocket dial error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		q.mu.Lock()
		q.conn = conn
		q.mu.Unlock()

		logger.Info("✅ [OpenAlgo] WebSocket 已连接: %s", q.wsURL)

		if err := q.authenticate(); err != nil {
			logger.Error("OpenAlgo WebSocket auth error: %v", err)
			conn.Close()
			time.Sleep(5 * time.Second)
			continue
		}

		if err := q.subscribe(instruments); err != nil {
			logger.Error("OpenAlgo WebSocket subscribe error: %v", err)
			conn.Close()
			time.Sleep(5 * time.Second)
			continue
		}

		metrics.SetWebSocketConnected("openalgo", true)
		q.readMessages(stopCh)
		metrics.SetWebSocketConnected("openalgo", false)

		select {
		case <-stopCh:
			return
		default:
		}

		logger.Warn("⚠️ [OpenAlgo] WebSocket 断开，5 秒后重连...")
		time.Sleep(5 * time.Second)
	}
}

// authenticate 发送认证消息
func (q *QuoteStream) authenticate() error {
	return q.sendMessage(map[string]interface{}{
		"action":  "authenticate",
		"api_key": q.apiKey,
	})
}

// subscribe 订阅行情，mode 2 为 Quote 模式
func (q *QuoteStream) subscribe(instruments []wsInstrument) error {
	for _, inst := range instruments {
		msg := map[string]interface{}{
			"action":   "subscribe",
			"symbol":   inst.Symbol,
			"exchange": inst.Exchange,
			"mode":     2,
		}
		if err := q.sendMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

// sendMessage 发送消息
func (q *QuoteStream) sendMessage(msg interface{}) error {
	q.mu.RLock()
	conn := q.conn
	q.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("websocket not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return conn.WriteMessage(websocket.TextMessage, data)
}

// readMessages 读取消息
func (q *QuoteStream) readMessages(stopCh <-chan struct{}) {
	q.mu.RLock()
	conn := q.conn
	q.mu.RUnlock()

	if conn == nil {
		return
	}

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			logger.Error("OpenAlgo WebSocket read error: %v", err)
			return
		}

		q.handleMessage(message)
	}
}

// wsQuoteMessage 行情推送消息
type wsQuoteMessage struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Data     struct {
		LTP    flexFloat `json:"ltp"`
		Bid    flexFloat `json:"bid"`
		Ask    flexFloat `json:"ask"`
		Open   flexFloat `json:"open"`
		High   flexFloat `json:"high"`
		Low    flexFloat `json:"low"`
		Volume flexFloat `json:"volume"`
	} `json:"data"`
}

// handleMessage 处理消息
func (q *QuoteStream) handleMessage(message []byte) {
	var msg wsQuoteMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Error("OpenAlgo WebSocket unmarshal error: %v", err)
		return
	}

	if msg.Status == "error" {
		logger.Error("OpenAlgo WebSocket error message: %s", strings.TrimSpace(string(message)))
		return
	}

	if msg.Type != "market_data" || msg.Symbol == "" {
		return
	}

	q.mu.RLock()
	pair, ok := q.pairs[msg.Symbol+":"+msg.Exchange]
	callback := q.callback
	q.mu.RUnlock()

	if !ok || callback == nil {
		return
	}

	callback(&Ticker{
		Symbol:     pair,
		Bid:        float64(msg.Data.Bid),
		Ask:        float64(msg.Data.Ask),
		Last:       float64(msg.Data.LTP),
		Open:       float64(msg.Data.Open),
		High:       float64(msg.Data.High),
		Low:        float64(msg.Data.Low),
		BaseVolume: float64(msg.Data.Volume),
		Timestamp:  time.Now().UnixMilli(),
	})
}
