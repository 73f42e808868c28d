package errorx

import (
	"errors"
	"fmt"
)

// Error 统一错误：code、类别、出错方、文案、cause、扩展字段
type Error struct {
	Code    CodeEntry      `json:"code"`
	Type    CodeEntry      `json:"type"`
	Service CodeEntry      `json:"service"`
	Message string         `json:"message"` // 覆盖 Code.Message
	Cause   error          `json:"-"`
	Fields  map[string]any `json:"fields,omitempty"`
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = e.Code.Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("code=%d service=%s msg=%s cause=%v", e.Code.Code, e.Service.Message, msg, e.Cause)
	}
	return fmt.Sprintf("code=%d service=%s msg=%s", e.Code.Code, e.Service.Message, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is 同 code 即视为同一错误，配合 errors.Is(err, errorx.New(code)) 使用
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return e.Code.Code == t.Code.Code
}

// -------------------- Option --------------------

type Option func(*Error)

func WithMessage(msg string) Option {
	return func(e *Error) { e.Message = msg }
}

func WithCause(err error) Option {
	return func(e *Error) { e.Cause = err }
}

func WithType(t CodeEntry) Option {
	return func(e *Error) { e.Type = t }
}

func WithService(s CodeEntry) Option {
	return func(e *Error) { e.Service = s }
}

func WithField(k string, v any) Option {
	return func(e *Error) {
		if e.Fields == nil {
			e.Fields = make(map[string]any)
		}
		e.Fields[k] = v
	}
}

// -------------------- 构造 --------------------

func New(code CodeEntry, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Type:    ErrTypeSys,
		Service: ServiceDefault,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func Newf(code CodeEntry, f string, args ...any) *Error {
	return New(code, WithMessage(fmt.Sprintf(f, args...)))
}

// Wrap 已经是 *Error 时只追加 Option，否则包一层
func Wrap(err error, code CodeEntry, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		for _, opt := range opts {
			opt(e)
		}
		return e
	}
	return New(code, append([]Option{WithCause(err)}, opts...)...)
}

// FromPanic 把 recover() 的结果转成 *Error
func FromPanic(rec any, code CodeEntry, opts ...Option) *Error {
	if rec == nil {
		return nil
	}
	cause, ok := rec.(error)
	if !ok {
		cause = fmt.Errorf("%v", rec)
	}
	return New(code, append([]Option{WithCause(cause), WithField("panic", fmt.Sprint(rec))}, opts...)...)
}
