package code

import "sync"

// Code 错误码注册表, 错误码在各业务的errno包init中注册

type Meta struct {
	Code            int32
	Msg             string
	AffectStability bool
}

type RegisterOption func(m *Meta)

var (
	mu    sync.RWMutex
	metas = map[int32]*Meta{}
)

// WithAffectStability 设置该错误码是否影响系统稳定性, 影响稳定性的错误会以Error级别记录
func WithAffectStability(affectStability bool) RegisterOption {
	return func(m *Meta) {
		m.AffectStability = affectStability
	}
}

// Register 注册一个错误码, 重复注册时后者覆盖前者
func Register(code int32, msg string, opts ...RegisterOption) {
	m := &Meta{Code: code, Msg: msg, AffectStability: true}
	for _, opt := range opts {
		opt(m)
	}
	mu.Lock()
	metas[code] = m
	mu.Unlock()
}

// Get 获取错误码信息
func Get(code int32) (*Meta, bool) {
	mu.RLock()
	defer mu.RUnlock()
	m, ok := metas[code]
	return m, ok
}
