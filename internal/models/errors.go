package models

import (
	"errors"
	"fmt"
)

// ErrorKind 区分错误的处理方式：只有交易所错误会在下一个 tick 重试。
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfiguration
	KindSizing
	KindExchange
	KindPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindSizing:
		return "sizing"
	case KindExchange:
		return "exchange"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidMode is returned for a trading mode other than LONG or SHORT_INVERTED.
	ErrInvalidMode = errors.New("invalid trading mode")
	// ErrOrderNotFound is returned by adapters when the exchange does not know the order.
	ErrOrderNotFound = errors.New("order not found")
)

// Error 是带分类的错误
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind. A nil err yields nil.
func NewError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind ErrorKind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable 报告错误是否可以在下一个 tick 重试
func IsRetryable(err error) bool {
	return KindOf(err) == KindExchange
}
