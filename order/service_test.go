package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"stockmesh/config"
	"stockmesh/exchange"
)

// recordingLock 记录加解锁调用的测试锁
type recordingLock struct {
	mu      sync.Mutex
	locked  []string
	release []string
}

func (r *recordingLock) Lock(ctx context.Context, key string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = append(r.locked, key)
	return nil
}

func (r *recordingLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (r *recordingLock) Unlock(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.release = append(r.release, key)
	return nil
}

func (r *recordingLock) Extend(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func (r *recordingLock) Close() error { return nil }

// newPaperExchange 模拟盘适配器
func newPaperExchange(t *testing.T) exchange.IExchange {
	t.Helper()

	cfg := config.CreateMinimalConfig()
	cfg.Simulation.InitialBalance = 100000
	cfg.Simulation.BasePrice = 100
	cfg.Simulation.DataDir = t.TempDir()

	ex, err := exchange.NewExchange(cfg)
	if err != nil {
		t.Fatalf("创建模拟盘失败: %v", err)
	}
	t.Cleanup(func() { ex.Close() })
	return ex
}

func TestPlaceOrderAcquiresAndReleasesLock(t *testing.T) {
	locker := &recordingLock{}
	svc := NewService(newPaperExchange(t), locker, 5*time.Second)

	order, err := svc.PlaceOrder(context.Background(), &exchange.OrderRequest{
		Pair: "RELIANCE/INR", Side: exchange.SideBuy, Type: exchange.OrderTypeMarket, Quantity: 10,
	})
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}
	if order.Status != exchange.OrderStatusFilled {
		t.Errorf("订单应成交: %s", order.Status)
	}

	if len(locker.locked) != 1 || locker.locked[0] != "order:RELIANCE/INR" {
		t.Errorf("加锁记录错误: %v", locker.locked)
	}
	if len(locker.release) != 1 || locker.release[0] != "order:RELIANCE/INR" {
		t.Errorf("解锁记录错误: %v", locker.release)
	}
}

func TestPlaceOrderReleasesLockOnFailure(t *testing.T) {
	locker := &recordingLock{}
	svc := NewService(newPaperExchange(t), locker, 5*time.Second)

	// 资金不足
	_, err := svc.PlaceOrder(context.Background(), &exchange.OrderRequest{
		Pair: "RELIANCE/INR", Side: exchange.SideBuy, Type: exchange.OrderTypeMarket, Quantity: 1e9,
	})
	if !exchange.IsKind(err, exchange.KindInsufficientFunds) {
		t.Fatalf("应返回资金不足: %v", err)
	}

	if len(locker.release) != 1 {
		t.Errorf("失败时也应释放锁: %v", locker.release)
	}
}

func TestNewServiceDefaults(t *testing.T) {
	svc := NewService(newPaperExchange(t), nil, 0)

	// 默认 NopLock 不应阻塞
	if _, err := svc.PlaceOrder(context.Background(), &exchange.OrderRequest{
		Pair: "TCS/INR", Side: exchange.SideBuy, Type: exchange.OrderTypeMarket, Quantity: 1,
	}); err != nil {
		t.Fatalf("默认配置下单失败: %v", err)
	}
}

func TestSyncBalanceMetrics(t *testing.T) {
	svc := NewService(newPaperExchange(t), nil, 0)

	if err := svc.SyncBalanceMetrics(context.Background()); err != nil {
		t.Fatalf("同步资金指标失败: %v", err)
	}
}
