package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextManagerLazySingleton(t *testing.T) {
	created := 0
	mgr := NewContextManager(func() (OutputContext, error) {
		created++
		return newFakeContext(), nil
	})

	// 创建延迟到首次获取
	assert.Equal(t, 0, created)

	first, err := mgr.GetContext()
	require.NoError(t, err)

	second, err := mgr.GetContext()
	require.NoError(t, err)

	assert.Equal(t, 1, created)
	assert.Same(t, first, second)
}

func TestContextManagerFactoryFailure(t *testing.T) {
	attempts := 0
	bootErr := errors.New("no device")
	mgr := NewContextManager(func() (OutputContext, error) {
		attempts++
		if attempts == 1 {
			return nil, bootErr
		}
		return newFakeContext(), nil
	})

	_, err := mgr.GetContext()
	assert.ErrorIs(t, err, ErrUnavailable)

	// 失败不缓存，下次获取重新尝试
	ctx, err := mgr.GetContext()
	require.NoError(t, err)
	assert.NotNil(t, ctx)
}

func TestContextManagerOpportunisticResume(t *testing.T) {
	fc := newFakeContext()
	fc.setSuspended(true)
	mgr := NewContextManager(func() (OutputContext, error) { return fc, nil })

	_, err := mgr.GetContext()
	require.NoError(t, err)

	// 挂起状态触发后台恢复
	require.Eventually(t, func() bool { return !fc.Suspended() }, time.Second, 10*time.Millisecond)
}

func TestResumeContext(t *testing.T) {
	fc := newFakeContext()
	mgr := NewContextManager(func() (OutputContext, error) { return fc, nil })

	require.NoError(t, mgr.ResumeContext())
	assert.False(t, fc.Suspended())
}
