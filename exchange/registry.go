package exchange

import (
	"sort"
	"sync"

	"stockmesh/config"
)

// Constructor 适配器构造函数
type Constructor func(cfg *config.Config) (IExchange, error)

// Registry 适配器注册表
//
// 注册表由调用方显式创建和传递，不使用包级全局状态。
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
	}
}

// Register 注册适配器构造函数
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = ctor
}

// Known 返回已注册的适配器名称（排序后）
func (r *Registry) Known() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create 创建指定名称的适配器
//
// 未注册的名称返回 ConfigurationError，错误信息包含所有已注册的适配器。
func (r *Registry) Create(name string, cfg *config.Config) (IExchange, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[name]
	r.mu.RUnlock()

	if !ok {
		return nil, NewError(KindConfiguration, name,
			"不支持的券商: %s（已注册: %v）", name, r.Known())
	}
	return ctor(cfg)
}
