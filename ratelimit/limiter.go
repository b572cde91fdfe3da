package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"stockmesh/logger"
)

// Limiter 滑动窗口限流器，支持多个时间窗口叠加
//
// 支持:
// - 每秒请求数限制
// - 每分钟请求数限制
// - 每小时/每天请求数限制
// - 最小请求间隔
type Limiter struct {
	perSecond   int
	perMinute   int
	perHour     int
	perDay      int
	minInterval time.Duration

	mu           sync.Mutex
	requestTimes []time.Time
	lastRequest  time.Time

	// 统计
	totalRequests int64
	totalWaitTime time.Duration
	limitHits     int64

	// 可注入的时钟与休眠函数，便于测试
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Options 限流器参数（0 表示该窗口不限制）
type Options struct {
	PerSecond   int
	PerMinute   int
	PerHour     int
	PerDay      int
	MinInterval time.Duration
}

// Stats 限流器统计信息
type Stats struct {
	TotalRequests      int64         `json:"total_requests"`
	TotalWaitTime      time.Duration `json:"total_wait_time"`
	RateLimitHits      int64         `json:"rate_limit_hits"`
	AvgWaitTime        time.Duration `json:"avg_wait_time"`
	RequestsLastSecond int           `json:"requests_last_second"`
	RequestsLastMinute int           `json:"requests_last_minute"`
	RequestsLastHour   int           `json:"requests_last_hour"`
}

// waitMargin 等待时间的安全余量，避免恰好落在窗口边界上
const waitMargin = 10 * time.Millisecond

// NewLimiter 创建限流器
func NewLimiter(opts Options) *Limiter {
	l := &Limiter{
		perSecond:   opts.PerSecond,
		perMinute:   opts.PerMinute,
		perHour:     opts.PerHour,
		perDay:      opts.PerDay,
		minInterval: opts.MinInterval,
		now:         time.Now,
		sleep:       sleepCtx,
	}

	logger.Debug("限流器初始化: %d req/s, %d req/min, %d req/h, %d req/d, 最小间隔 %v",
		opts.PerSecond, opts.PerMinute, opts.PerHour, opts.PerDay, opts.MinInterval)
	return l
}

// sleepCtx 可被 ctx 取消的休眠
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait 在必要时等待，保证请求不超过任一窗口的限制
//
// 计算、等待、记录在同一个临界区内完成，保证并发调用串行通过限流器。
// 返回实际等待时长。
func (l *Limiter) Wait(ctx context.Context) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictOld(now)

	var waitTime time.Duration

	// 最小间隔检查
	if l.minInterval > 0 && !l.lastRequest.IsZero() {
		sinceLast := now.Sub(l.lastRequest)
		if sinceLast < l.minInterval {
			waitTime = l.minInterval - sinceLast
		}
	}

	// 各窗口检查，取最大等待时间
	if l.perSecond > 0 {
		if w := l.windowWait(now, time.Second, l.perSecond); w > waitTime {
			waitTime = w
		}
	}
	if l.perMinute > 0 {
		if w := l.windowWait(now, time.Minute, l.perMinute); w > waitTime {
			waitTime = w
		}
	}
	if l.perHour > 0 {
		if w := l.windowWait(now, time.Hour, l.perHour); w > waitTime {
			waitTime = w
		}
	}
	if l.perDay > 0 {
		if w := l.windowWait(now, 24*time.Hour, l.perDay); w > waitTime {
			waitTime = w
		}
	}

	if waitTime > 0 {
		l.limitHits++
		l.totalWaitTime += waitTime
		logger.Debug("触发限流: 等待 %v", waitTime)
		if err := l.sleep(ctx, waitTime); err != nil {
			return waitTime, err
		}
		now = l.now()
	}

	// 记录本次请求
	l.requestTimes = append(l.requestTimes, now)
	l.lastRequest = now
	l.totalRequests++

	return waitTime, nil
}

// evictOld 清理超出最长窗口的请求记录
func (l *Limiter) evictOld(now time.Time) {
	maxPeriod := 24 * time.Hour
	switch {
	case l.perDay > 0:
		// 保留一天
	case l.perHour > 0:
		maxPeriod = time.Hour
	case l.perMinute > 0:
		maxPeriod = time.Minute
	case l.perSecond > 0:
		maxPeriod = time.Second
	}

	cutoff := now.Add(-maxPeriod)
	idx := 0
	for idx < len(l.requestTimes) && l.requestTimes[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		l.requestTimes = l.requestTimes[idx:]
	}
}

// windowWait 计算单个窗口需要的等待时间
//
// 窗口内请求数达到上限时，等待到窗口内最早一条记录滑出窗口，再加安全余量。
func (l *Limiter) windowWait(now time.Time, period time.Duration, limit int) time.Duration {
	cutoff := now.Add(-period)

	count := 0
	var oldest time.Time
	for _, t := range l.requestTimes {
		if !t.Before(cutoff) {
			if count == 0 {
				oldest = t
			}
			count++
		}
	}

	if count >= limit {
		wait := oldest.Add(period).Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait + waitMargin
	}
	return 0
}

// GetStats 获取统计信息
func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stats := Stats{
		TotalRequests:      l.totalRequests,
		TotalWaitTime:      l.totalWaitTime,
		RateLimitHits:      l.limitHits,
		RequestsLastSecond: l.countInPeriod(now, time.Second),
		RequestsLastMinute: l.countInPeriod(now, time.Minute),
		RequestsLastHour:   l.countInPeriod(now, time.Hour),
	}
	if l.limitHits > 0 {
		stats.AvgWaitTime = l.totalWaitTime / time.Duration(l.limitHits)
	}
	return stats
}

// countInPeriod 统计窗口内的请求数
func (l *Limiter) countInPeriod(now time.Time, period time.Duration) int {
	cutoff := now.Add(-period)
	count := 0
	for _, t := range l.requestTimes {
		if !t.Before(cutoff) {
			count++
		}
	}
	return count
}

// Reset 重置限流器状态
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.requestTimes = nil
	l.lastRequest = time.Time{}
	l.totalRequests = 0
	l.totalWaitTime = 0
	l.limitHits = 0
	logger.Info("限流器已重置")
}

// ForBroker 根据券商名称返回预设限流器
//
// 未知券商使用保守的默认配置。
func ForBroker(broker string) *Limiter {
	switch strings.ToLower(broker) {
	case "openalgo", "open_algo":
		return NewLimiter(Options{PerSecond: 10, PerMinute: 300, MinInterval: 50 * time.Millisecond})
	case "zerodha", "kite", "kiteconnect":
		return NewLimiter(Options{PerSecond: 3, PerMinute: 180, MinInterval: 333 * time.Millisecond})
	case "smartapi", "smart_api", "angelone", "angel":
		return NewLimiter(Options{PerSecond: 10, PerMinute: 500, MinInterval: 100 * time.Millisecond})
	default:
		logger.Warn("未知券商 '%s'，使用默认限流配置", broker)
		return NewLimiter(Options{PerSecond: 5, PerMinute: 100, MinInterval: 200 * time.Millisecond})
	}
}

// EndpointLimiter 接口级限流器
//
// 在全局限流之外，对特定接口（如下单）叠加独立的限流策略。
type EndpointLimiter struct {
	defaultLimiter *Limiter

	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewEndpointLimiter 创建接口级限流器
func NewEndpointLimiter(defaultLimiter *Limiter) *EndpointLimiter {
	return &EndpointLimiter{
		defaultLimiter: defaultLimiter,
		limiters:       make(map[string]*Limiter),
	}
}

// AddEndpointLimit 为特定接口添加独立限流
func (e *EndpointLimiter) AddEndpointLimit(endpoint string, opts Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limiters[endpoint] = NewLimiter(opts)
	logger.Info("接口 '%s' 已添加独立限流", endpoint)
}

// Wait 先通过全局限流，再通过接口限流（如有）
func (e *EndpointLimiter) Wait(ctx context.Context, endpoint string) (time.Duration, error) {
	total, err := e.defaultLimiter.Wait(ctx)
	if err != nil {
		return total, err
	}

	if endpoint != "" {
		e.mu.RLock()
		limiter := e.limiters[endpoint]
		e.mu.RUnlock()
		if limiter != nil {
			w, err := limiter.Wait(ctx)
			total += w
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// GetStats 获取全局与各接口的统计信息
func (e *EndpointLimiter) GetStats() map[string]Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := make(map[string]Stats, len(e.limiters)+1)
	stats["default"] = e.defaultLimiter.GetStats()
	for endpoint, limiter := range e.limiters {
		stats[endpoint] = limiter.GetStats()
	}
	return stats
}
