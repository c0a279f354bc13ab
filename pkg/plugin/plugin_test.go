package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnRejectsUnknownHook(t *testing.T) {
	h := NewHost()
	err := h.On(Hook("made-up"), func(ctx context.Context, args interface{}) error { return nil })
	require.Error(t, err)
}

func TestFireInvokesInRegistrationOrder(t *testing.T) {
	h := NewHost()
	var order []int
	require.NoError(t, h.On(HookPreStart, func(ctx context.Context, args interface{}) error {
		order = append(order, 1)
		return nil
	}))
	require.NoError(t, h.On(HookPreStart, func(ctx context.Context, args interface{}) error {
		order = append(order, 2)
		return nil
	}))

	require.NoError(t, h.Fire(context.Background(), HookPreStart, nil))
	assert.Equal(t, []int{1, 2}, order)
}

func TestFireStopsAtFirstError(t *testing.T) {
	h := NewHost()
	called := false
	require.NoError(t, h.On(HookPostStart, func(ctx context.Context, args interface{}) error {
		return assertErr("boom")
	}))
	require.NoError(t, h.On(HookPostStart, func(ctx context.Context, args interface{}) error {
		called = true
		return nil
	}))

	err := h.Fire(context.Background(), HookPostStart, nil)
	require.Error(t, err)
	assert.False(t, called)
}

func TestRegisterCatalogKindRejectsDuplicate(t *testing.T) {
	h := NewHost()
	factory := func(params map[string]interface{}) (interface{}, error) { return params, nil }
	require.NoError(t, h.RegisterCatalogKind("http", factory))
	err := h.RegisterCatalogKind("http", factory)
	require.Error(t, err)
}

func TestBuildCatalogKindUsesRegisteredFactory(t *testing.T) {
	h := NewHost()
	require.NoError(t, h.RegisterCatalogKind("tcp", func(params map[string]interface{}) (interface{}, error) {
		return params["port"], nil
	}))

	got, err := h.BuildCatalogKind("tcp", map[string]interface{}{"port": 5432})
	require.NoError(t, err)
	assert.Equal(t, 5432, got)
}

func TestCatalogKindsSorted(t *testing.T) {
	h := NewHost()
	noop := func(params map[string]interface{}) (interface{}, error) { return nil, nil }
	require.NoError(t, h.RegisterCatalogKind("time", noop))
	require.NoError(t, h.RegisterCatalogKind("http", noop))

	assert.Equal(t, []string{"http", "time"}, h.CatalogKinds())
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
