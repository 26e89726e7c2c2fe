package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVSetGet(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	_, err := kv.Set(ctx, map[string]any{"key": "foo", "value": "bar"})
	require.NoError(t, err)

	val, err := kv.Get(ctx, map[string]any{"key": "foo"})
	require.NoError(t, err)
	assert.Equal(t, "bar", val)

	val, err = kv.Get(ctx, map[string]any{"key": "missing", "default": "fallback"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", val)

	val, err = kv.Get(ctx, map[string]any{"key": "missing"})
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestKVDeleteAndReset(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	_, _ = kv.Set(ctx, map[string]any{"key": "a", "value": 1})
	_, _ = kv.Set(ctx, map[string]any{"key": "b", "value": 2})
	_, err := kv.Delete(ctx, map[string]any{"key": "a"})
	require.NoError(t, err)

	keys, err := kv.Keys(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)

	kv.Reset()
	keys, _ = kv.Keys(ctx, nil)
	assert.Empty(t, keys)
}

func TestKVKeysSorted(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()
	for _, k := range []string{"c", "a", "b"} {
		_, err := kv.Set(ctx, map[string]any{"key": k, "value": k})
		require.NoError(t, err)
	}

	keys, err := kv.Keys(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestKVLimits(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  KVConfig
		args map[string]any
	}{
		{"missing key", DefaultKVConfig(), map[string]any{"value": "x"}},
		{"missing value", DefaultKVConfig(), map[string]any{"key": "k"}},
		{"key too large", KVConfig{MaxKeySize: 10}, map[string]any{"key": "this-key-is-too-long", "value": "x"}},
		{"value too large", KVConfig{MaxValueSize: 10}, map[string]any{"key": "k", "value": "this-value-is-way-too-large"}},
		{"unencodable value", KVConfig{MaxValueSize: 10}, map[string]any{"key": "k", "value": func() {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKV(tt.cfg).Set(ctx, tt.args)
			assert.Error(t, err)
		})
	}
}

func TestKVTooManyEntries(t *testing.T) {
	kv := NewKV(KVConfig{MaxEntries: 2})
	ctx := context.Background()

	_, _ = kv.Set(ctx, map[string]any{"key": "a", "value": "1"})
	_, _ = kv.Set(ctx, map[string]any{"key": "b", "value": "2"})

	_, err := kv.Set(ctx, map[string]any{"key": "c", "value": "3"})
	assert.Error(t, err)

	_, err = kv.Set(ctx, map[string]any{"key": "a", "value": "overwrite"})
	assert.NoError(t, err, "overwriting an existing key is always allowed")
}

func TestKVConcurrent(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", n%26)
			_, _ = kv.Set(ctx, map[string]any{"key": key, "value": n})
			_, _ = kv.Get(ctx, map[string]any{"key": key})
		}(i)
	}
	wg.Wait()

	keys, _ := kv.Keys(ctx, nil)
	assert.Len(t, keys, 26)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	NewKV(DefaultKVConfig()).Register(r)
	r.Register("echo", func(_ context.Context, args map[string]any) (any, error) {
		return args["msg"], nil
	})

	assert.Equal(t, []string{"echo", "kv_delete", "kv_get", "kv_keys", "kv_set"}, r.List())

	ctx := context.Background()
	out, err := r.Call(ctx, "echo", map[string]any{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	out, err = r.Call(ctx, "echo", nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = r.Call(ctx, "nope", nil)
	assert.True(t, errors.Is(err, ErrUnknownFunction))
}
