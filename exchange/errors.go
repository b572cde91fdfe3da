package exchange

import (
	"errors"
	"fmt"
)

// ErrorKind 交易所错误类别
//
// 适配器边界统一转换为带类别的错误，调用方通过 errors.As/Is 判断，
// 不做错误字符串匹配。
type ErrorKind int

const (
	// KindExchange 券商返回的业务错误
	KindExchange ErrorKind = iota
	// KindTemporary 临时性错误（网络、5xx），可重试
	KindTemporary
	// KindDDoSProtection 触发限流保护（429）
	KindDDoSProtection
	// KindInsufficientFunds 资金不足
	KindInsufficientFunds
	// KindInvalidOrder 无效订单（数量、价格、手数不合法）
	KindInvalidOrder
	// KindOrderNotFound 订单不存在
	KindOrderNotFound
	// KindNotSupported 适配器不支持该能力
	KindNotSupported
	// KindConfiguration 配置错误
	KindConfiguration
)

// String 错误类别名称
func (k ErrorKind) String() string {
	switch k {
	case KindExchange:
		return "ExchangeError"
	case KindTemporary:
		return "TemporaryError"
	case KindDDoSProtection:
		return "DDoSProtection"
	case KindInsufficientFunds:
		return "InsufficientFunds"
	case KindInvalidOrder:
		return "InvalidOrder"
	case KindOrderNotFound:
		return "OrderNotFound"
	case KindNotSupported:
		return "NotSupported"
	case KindConfiguration:
		return "ConfigurationError"
	default:
		return "UnknownError"
	}
}

// Error 交易所错误
type Error struct {
	Kind   ErrorKind
	Broker string // 产生错误的券商（可为空）
	Msg    string
	Err    error // 底层错误（可为空）
}

func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.Broker != "" {
		prefix = fmt.Sprintf("%s [%s]", prefix, e.Broker)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Msg)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Err
}

// Is 支持 errors.Is 按类别比较
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError 创建交易所错误
func NewError(kind ErrorKind, broker, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Broker: broker, Msg: fmt.Sprintf(format, args...)}
}

// WrapError 包装底层错误
func WrapError(kind ErrorKind, broker string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Broker: broker, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 提取错误类别，非交易所错误返回 KindExchange 和 false
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindExchange, false
}

// IsKind 判断错误是否属于指定类别
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsRetryable 是否为可重试错误（临时错误或限流保护）
func IsRetryable(err error) bool {
	k, ok := KindOf(err)
	return ok && (k == KindTemporary || k == KindDDoSProtection)
}
