package order

import (
	"context"
	"time"

	"stockmesh/exchange"
	"stockmesh/lock"
	"stockmesh/logger"
	"stockmesh/metrics"
)

// Service 下单服务
//
// 在适配器之上做两件事：多实例部署时按交易对串行化下单，
// 以及记录订单指标。单实例模式传入 NopLock 即可。
type Service struct {
	ex      exchange.IExchange
	locker  lock.DistributedLock
	lockTTL time.Duration
}

// NewService 创建下单服务
func NewService(ex exchange.IExchange, locker lock.DistributedLock, lockTTL time.Duration) *Service {
	if locker == nil {
		locker = lock.NewNopLock()
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}

	return &Service{
		ex:      ex,
		locker:  locker,
		lockTTL: lockTTL,
	}
}

// PlaceOrder 下单，同一交易对的并发下单按锁串行化
func (s *Service) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.Order, error) {
	lockKey := "order:" + req.Pair
	if err := s.locker.Lock(ctx, lockKey, s.lockTTL); err != nil {
		return nil, exchange.WrapError(exchange.KindTemporary, s.ex.GetName(), err, "获取下单锁失败")
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
			logger.Warn("⚠️ [Order] 释放下单锁失败: %v", err)
		}
	}()

	broker := s.ex.GetName()
	start := time.Now()

	order, err := s.ex.PlaceOrder(ctx, req)
	if err != nil {
		kind, _ := exchange.KindOf(err)
		metrics.RecordOrderFailure(broker, req.Pair, string(req.Side), kind.String())
		return nil, err
	}

	metrics.RecordOrder(broker, req.Pair, string(req.Side), string(order.Status), time.Since(start))
	logger.Info("✅ [Order] %s %s %.2f@%.2f 状态 %s (ID: %s)",
		req.Side, req.Pair, order.FilledQty, order.AvgPrice, order.Status, order.OrderID)
	return order, nil
}

// CancelOrder 取消订单
func (s *Service) CancelOrder(ctx context.Context, pair, orderID string) error {
	return s.ex.CancelOrder(ctx, pair, orderID)
}

// GetOrder 查询订单
func (s *Service) GetOrder(ctx context.Context, pair, orderID string) (*exchange.Order, error) {
	return s.ex.GetOrder(ctx, pair, orderID)
}

// SyncBalanceMetrics 拉取资金并刷新指标
func (s *Service) SyncBalanceMetrics(ctx context.Context) error {
	balances, err := s.ex.FetchBalance(ctx)
	if err != nil {
		return err
	}

	broker := s.ex.GetName()
	for currency, bal := range balances {
		metrics.RecordBalance(broker, currency, bal.Free, bal.Used)
	}
	return nil
}
