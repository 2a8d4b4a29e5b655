package realtime

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetDefault(t *testing.T) {
	t.Helper()
	defaultMu.Lock()
	prev := defaultRegistry
	defaultRegistry = nil
	defaultMu.Unlock()
	t.Cleanup(func() {
		defaultMu.Lock()
		defaultRegistry = prev
		defaultMu.Unlock()
	})
}

// TestRegistry_Singleton 并发获取总是同一个 Manager
func TestRegistry_Singleton(t *testing.T) {
	fc := newFakeClient()
	reg := NewRegistry(WithConfig(testConfig()), WithConstructor(fc.constructor()))
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	var wg sync.WaitGroup
	managers := make([]*Manager, 20)
	for i := range managers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := reg.Manager()
			assert.NoError(t, err)
			managers[i] = m
		}(i)
	}
	wg.Wait()

	for _, m := range managers {
		assert.Same(t, managers[0], m)
	}
}

// TestRegistry_ReinitRecoversManager 重复初始化拿回已有实例，不建立第二条连接
func TestRegistry_ReinitRecoversManager(t *testing.T) {
	resetDefault(t)
	fc := newFakeClient()

	first := SetDefault(NewRegistry(WithConfig(testConfig()), WithConstructor(fc.constructor())))
	t.Cleanup(func() { _ = first.Close(context.Background()) })
	m1, err := Default().Manager()
	require.NoError(t, err)
	_, err = m1.Connect(context.Background(), "u1", "")
	require.NoError(t, err)

	// 配置热更新后再次初始化
	again := SetDefault(NewRegistry(WithConfig(testConfig()), WithConstructor(fc.constructor())))
	assert.Same(t, first, again)
	m2, err := Default().Manager()
	require.NoError(t, err)
	assert.Same(t, m1, m2)

	_, err = m2.Connect(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, fc.connectCount())
}

// TestRegistry_FailedBuildNotCached 构造失败不缓存
func TestRegistry_FailedBuildNotCached(t *testing.T) {
	bad := testConfig()
	bad.LogLevel = "loud"
	reg := NewRegistry(WithConfig(bad))
	_, err := reg.Manager()
	assert.Error(t, err)
	assert.False(t, reg.Loaded())
	assert.NoError(t, reg.Close(context.Background()))
}

// TestDefault 未设置时自动创建
func TestDefault(t *testing.T) {
	resetDefault(t)
	r := Default()
	require.NotNil(t, r)
	assert.Same(t, r, Default())

	// 尚未构造 Manager 时允许替换
	next := NewRegistry()
	assert.Same(t, next, SetDefault(next))
	assert.Same(t, next, Default())
}
