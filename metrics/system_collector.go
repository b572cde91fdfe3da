package metrics

import (
	"context"
	"runtime"
	"time"

	"stockmesh/logger"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemCollector 系统指标采集器
type SystemCollector struct {
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSystemCollector 创建系统指标采集器
func NewSystemCollector(interval time.Duration) *SystemCollector {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SystemCollector{
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 启动采集
func (c *SystemCollector) Start() {
	go c.collectLoop()
}

// Stop 停止采集
func (c *SystemCollector) Stop() {
	c.cancel()
}

// collectLoop 采集循环
func (c *SystemCollector) collectLoop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// collect 采集一次运行时与主机指标
func (c *SystemCollector) collect() {
	goroutineCount.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memoryAllocBytes.Set(float64(m.Alloc))

	// cpu.Percent(0) 返回自上次调用以来的使用率，不阻塞
	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		cpuUsagePercent.Set(percentages[0])
	} else if err != nil {
		logger.Debug("CPU 指标采集失败: %v", err)
	}

	if memStat, err := mem.VirtualMemory(); err == nil {
		memoryUsagePercent.Set(memStat.UsedPercent)
	} else {
		logger.Debug("内存指标采集失败: %v", err)
	}
}
