package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeClock 可手动推进的时钟，休眠直接推进时钟
type fakeClock struct {
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Unix(1700000000, 0)}
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.current = c.current.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestLimiter(opts Options, clock *fakeClock) *Limiter {
	l := NewLimiter(opts)
	l.now = clock.now
	l.sleep = clock.sleep
	return l
}

func TestLimiterNoWaitUnderLimit(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Options{PerSecond: 3}, clock)

	for i := 0; i < 3; i++ {
		wait, err := l.Wait(context.Background())
		if err != nil {
			t.Fatalf("Wait 返回错误: %v", err)
		}
		if wait != 0 {
			t.Errorf("第 %d 次请求不应该等待, 实际等待 %v", i+1, wait)
		}
	}
}

func TestLimiterPerSecondWait(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Options{PerSecond: 3}, clock)
	ctx := context.Background()

	// 前3次不等待
	for i := 0; i < 3; i++ {
		if _, err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait 返回错误: %v", err)
		}
	}

	// 第4次必须等待约1秒（最早记录滑出窗口 + 余量）
	wait, err := l.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait 返回错误: %v", err)
	}
	if wait < time.Second || wait > time.Second+100*time.Millisecond {
		t.Errorf("第4次请求等待时间错误: 期望约1秒, 实际 %v", wait)
	}
}

func TestLimiterWindowSlides(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Options{PerSecond: 3}, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait 返回错误: %v", err)
		}
	}

	// 窗口滑过后不再等待
	clock.advance(1100 * time.Millisecond)
	wait, err := l.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait 返回错误: %v", err)
	}
	if wait != 0 {
		t.Errorf("窗口滑过后不应该等待, 实际等待 %v", wait)
	}
}

func TestLimiterMinInterval(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Options{MinInterval: 200 * time.Millisecond}, clock)
	ctx := context.Background()

	if wait, _ := l.Wait(ctx); wait != 0 {
		t.Errorf("首次请求不应该等待, 实际等待 %v", wait)
	}

	clock.advance(50 * time.Millisecond)
	wait, err := l.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait 返回错误: %v", err)
	}
	if wait != 150*time.Millisecond {
		t.Errorf("最小间隔等待时间错误: 期望 150ms, 实际 %v", wait)
	}
}

func TestLimiterMaxAcrossWindows(t *testing.T) {
	clock := newFakeClock()
	// 每秒2次 + 最小间隔100ms，秒窗口的等待应该覆盖最小间隔
	l := newTestLimiter(Options{PerSecond: 2, MinInterval: 100 * time.Millisecond}, clock)
	ctx := context.Background()

	l.Wait(ctx)
	clock.advance(150 * time.Millisecond)
	l.Wait(ctx)

	wait, err := l.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait 返回错误: %v", err)
	}
	// 最早记录在 t=0, 窗口等待 = 1s - 150ms + 10ms = 860ms > 最小间隔100ms
	if wait != 860*time.Millisecond {
		t.Errorf("多窗口取最大等待时间错误: 期望 860ms, 实际 %v", wait)
	}
}

func TestLimiterContextCancel(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Options{PerSecond: 1}, clock)
	l.sleep = func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.Wait(ctx)
	cancel()

	if _, err := l.Wait(ctx); err == nil {
		t.Error("取消的 context 应该返回错误")
	}
}

func TestLimiterStats(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Options{PerSecond: 2}, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.Wait(ctx)
	}

	stats := l.GetStats()
	if stats.TotalRequests != 3 {
		t.Errorf("总请求数错误: 期望 3, 实际 %d", stats.TotalRequests)
	}
	if stats.RateLimitHits != 1 {
		t.Errorf("限流次数错误: 期望 1, 实际 %d", stats.RateLimitHits)
	}
	if stats.TotalWaitTime == 0 {
		t.Error("总等待时间不应该为0")
	}
	if stats.AvgWaitTime != stats.TotalWaitTime {
		t.Errorf("平均等待时间错误: %v", stats.AvgWaitTime)
	}
}

func TestLimiterReset(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(Options{PerSecond: 1}, clock)
	ctx := context.Background()

	l.Wait(ctx)
	l.Wait(ctx)
	l.Reset()

	stats := l.GetStats()
	if stats.TotalRequests != 0 || stats.RateLimitHits != 0 {
		t.Errorf("重置后统计应该清零: %+v", stats)
	}

	// 重置后首次请求不等待
	if wait, _ := l.Wait(ctx); wait != 0 {
		t.Errorf("重置后首次请求不应该等待, 实际等待 %v", wait)
	}
}

func TestForBrokerPresets(t *testing.T) {
	tests := []struct {
		broker      string
		perSecond   int
		perMinute   int
		minInterval time.Duration
	}{
		{"openalgo", 10, 300, 50 * time.Millisecond},
		{"zerodha", 3, 180, 333 * time.Millisecond},
		{"kite", 3, 180, 333 * time.Millisecond},
		{"smartapi", 10, 500, 100 * time.Millisecond},
		{"angelone", 10, 500, 100 * time.Millisecond},
		{"unknown_broker", 5, 100, 200 * time.Millisecond},
	}

	for _, tt := range tests {
		l := ForBroker(tt.broker)
		if l.perSecond != tt.perSecond || l.perMinute != tt.perMinute || l.minInterval != tt.minInterval {
			t.Errorf("券商 %s 预设错误: perSecond=%d perMinute=%d minInterval=%v",
				tt.broker, l.perSecond, l.perMinute, l.minInterval)
		}
	}
}

func TestEndpointLimiter(t *testing.T) {
	clock := newFakeClock()
	defaultLimiter := newTestLimiter(Options{PerSecond: 100}, clock)
	e := NewEndpointLimiter(defaultLimiter)

	e.AddEndpointLimit("placeorder", Options{PerSecond: 1})
	if ep := e.limiters["placeorder"]; ep != nil {
		ep.now = clock.now
		ep.sleep = clock.sleep
	}

	ctx := context.Background()
	wait, err := e.Wait(ctx, "placeorder")
	if err != nil {
		t.Fatalf("Wait 返回错误: %v", err)
	}
	if wait != 0 {
		t.Errorf("首次请求不应该等待, 实际等待 %v", wait)
	}

	// 接口限流触发，全局未触发
	wait, err = e.Wait(ctx, "placeorder")
	if err != nil {
		t.Fatalf("Wait 返回错误: %v", err)
	}
	if wait == 0 {
		t.Error("接口限流应该触发等待")
	}

	// 其他接口只受全局限流约束
	wait, err = e.Wait(ctx, "quotes")
	if err != nil {
		t.Fatalf("Wait 返回错误: %v", err)
	}
	if wait != 0 {
		t.Errorf("quotes 接口不应该等待, 实际等待 %v", wait)
	}

	stats := e.GetStats()
	if _, ok := stats["default"]; !ok {
		t.Error("统计缺少 default 项")
	}
	if _, ok := stats["placeorder"]; !ok {
		t.Error("统计缺少 placeorder 项")
	}
}
