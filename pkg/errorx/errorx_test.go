package errorx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xh-polaris/mindy-core-api/pkg/errorx/code"
)

const (
	testCode  int32 = 990001
	outerCode int32 = 990002
)

func init() {
	code.Register(testCode, "{kind} is broken", code.WithAffectStability(false))
	code.Register(outerCode, "outer failure")
}

func TestNewWithKV(t *testing.T) {
	err := New(testCode, KV("kind", "store"))

	var se StatusError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, testCode, se.Code())
	assert.Equal(t, "store is broken", se.Msg())
	assert.False(t, se.IsAffectStability())
	assert.Equal(t, map[string]string{"kind": "store"}, se.Extra())
}

func TestWrapByCode(t *testing.T) {
	assert.Nil(t, WrapByCode(nil, testCode))

	cause := errors.New("disk full")
	err := WrapByCode(cause, outerCode)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, outerCode, CodeOf(err))
	assert.Equal(t, "code=990002 msg=outer failure cause=disk full", ErrorWithoutStack(err))
}

func TestCodeOfChain(t *testing.T) {
	inner := New(testCode, KV("kind", "cache"))
	outer := WrapByCode(inner, outerCode)

	assert.Equal(t, outerCode, CodeOf(outer))
	assert.True(t, HasCode(outer, testCode))
	assert.True(t, HasCode(outer, outerCode))
	assert.Equal(t, int32(0), CodeOf(errors.New("plain")))
	assert.Equal(t, testCode, CodeOf(fmt.Errorf("ctx: %w", inner)))
}

func TestUnknownCodeMessage(t *testing.T) {
	err := New(123456789)
	var se StatusError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "未知错误", se.Msg())
}
