package errorx

import (
	"errors"
	"fmt"
	"strings"

	pkgerrs "github.com/pkg/errors"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx/code"
)

// StatusError 带业务错误码的错误, adaptor层通过errors.As取出错误码返回给前端
type StatusError interface {
	error
	Code() int32
	Msg() string
	IsAffectStability() bool
	Extra() map[string]string
}

type Option func(s *statusError)

type statusError struct {
	code            int32
	msg             string
	affectStability bool
	extra           map[string]string
	cause           error
}

func (s *statusError) Error() string {
	if s.cause != nil {
		return fmt.Sprintf("code=%d msg=%s cause=%s", s.code, s.msg, s.cause.Error())
	}
	return fmt.Sprintf("code=%d msg=%s", s.code, s.msg)
}

func (s *statusError) Code() int32             { return s.code }
func (s *statusError) Msg() string             { return s.msg }
func (s *statusError) IsAffectStability() bool { return s.affectStability }
func (s *statusError) Extra() map[string]string {
	return s.extra
}

func (s *statusError) Unwrap() error { return s.cause }

// KV 替换错误信息中的{k}占位符, 同时记录到Extra中
func KV(k, v string) Option {
	return func(s *statusError) {
		s.msg = strings.ReplaceAll(s.msg, "{"+k+"}", v)
		if s.extra == nil {
			s.extra = make(map[string]string)
		}
		s.extra[k] = v
	}
}

// Extra 附加额外信息
func Extra(k, v string) Option {
	return func(s *statusError) {
		if s.extra == nil {
			s.extra = make(map[string]string)
		}
		s.extra[k] = v
	}
}

func newStatus(statusCode int32, cause error, opts ...Option) *statusError {
	s := &statusError{code: statusCode, cause: cause, affectStability: true}
	if m, ok := code.Get(statusCode); ok {
		s.msg, s.affectStability = m.Msg, m.AffectStability
	} else {
		s.msg = "未知错误"
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New 根据错误码创建错误, 携带调用栈
func New(statusCode int32, opts ...Option) error {
	return pkgerrs.WithStack(newStatus(statusCode, nil, opts...))
}

// WrapByCode 使用错误码包装错误, err为nil时返回nil
func WrapByCode(err error, statusCode int32, opts ...Option) error {
	if err == nil {
		return nil
	}
	return pkgerrs.WithStack(newStatus(statusCode, err, opts...))
}

// Wrapf 为错误增加上下文信息, 保留原有错误码
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return pkgerrs.Wrapf(err, format, args...)
}

// CodeOf 取出错误链上最外层的错误码, 没有时返回0
func CodeOf(err error) int32 {
	var se StatusError
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

// HasCode 判断错误链上是否存在指定错误码
func HasCode(err error, statusCode int32) bool {
	for err != nil {
		if se, ok := err.(StatusError); ok && se.Code() == statusCode {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// ErrorWithoutStack 返回不带调用栈的错误信息, 用于日志
func ErrorWithoutStack(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.Index(msg, "\n"); i >= 0 {
		return msg[:i]
	}
	return msg
}
