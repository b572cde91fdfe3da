package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"stockmesh/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server Prometheus 指标服务
type Server struct {
	srv *http.Server
}

// NewServer 创建指标服务，/metrics 暴露 Prometheus 格式指标
func NewServer(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start 启动指标服务（非阻塞）
func (s *Server) Start() {
	go func() {
		logger.Info("📊 [Metrics] 指标服务已启动: %s/metrics", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("指标服务异常退出: %v", err)
		}
	}()
}

// Stop 停止指标服务
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
