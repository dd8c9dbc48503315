package hostfuncs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vss-interop/vss-go-interop/internal/testutil"
)

func nopHandler(context.Context, []byte) ([]byte, error) { return nil, nil }

func TestNewRegistry_Empty(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	assert.Empty(t, reg.Names())
	assert.Zero(t, reg.Len())
}

func TestNewRegistry_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts []RegistryOption
		want []string
	}{
		{
			name: "duplicate",
			opts: []RegistryOption{WithByteHandler("x", nopHandler), WithByteHandler("x", nopHandler)},
			want: []string{"duplicate handler name"},
		},
		{
			name: "empty name",
			opts: []RegistryOption{WithByteHandler("", nopHandler)},
			want: []string{"cannot be empty"},
		},
		{
			name: "nil handler",
			opts: []RegistryOption{WithByteHandler("x", nil)},
			want: []string{`handler "x" is nil`},
		},
		{
			name: "all reported",
			opts: []RegistryOption{
				WithByteHandler("", nopHandler),
				WithByteHandler("y", nopHandler),
				WithByteHandler("y", nopHandler),
			},
			want: []string{"cannot be empty", "duplicate handler name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.opts...)
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestHandlerRegistry_Invoke(t *testing.T) {
	reg, err := NewRegistry(
		WithByteHandler("echo", func(_ context.Context, p []byte) ([]byte, error) {
			return append([]byte("echo:"), p...), nil
		}),
		WithTextHandler("upper", func(_ context.Context, s string) string { return s + "!" }),
	)
	require.NoError(t, err)

	resp, err := reg.Invoke(context.Background(), "echo", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "echo:hello", string(resp))

	resp, err = reg.Invoke(context.Background(), "upper", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi!", string(resp))

	resp, err = reg.Invoke(context.Background(), "unknown", nil)
	require.NoError(t, err)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(resp, &errResp))
	assert.Equal(t, "NOT_FOUND", errResp.Error)
	assert.Equal(t, 404, errResp.Code)
}

func TestHandlerRegistry_Call(t *testing.T) {
	type req struct {
		N int `json:"n"`
	}
	reg, err := NewRegistry(
		WithHandler("double", func(_ context.Context, r req) req { return req{N: r.N * 2} }),
		WithByteHandler("fails", func(context.Context, []byte) ([]byte, error) { return nil, errors.New("bad input") }),
	)
	require.NoError(t, err)

	testutil.AssertJSONEqual(t, `{"n":8}`, string(reg.Call(context.Background(), "double", []byte(`{"n":4}`))))

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(reg.Call(context.Background(), "fails", nil), &errResp))
	assert.Equal(t, "VALIDATION_ERROR", errResp.Error)
	assert.Equal(t, "bad input", errResp.Message)

	require.NoError(t, json.Unmarshal(reg.Call(context.Background(), "double", []byte("{")), &errResp))
	assert.Equal(t, "VALIDATION_ERROR", errResp.Error)
}

func TestHandlerRegistry_NamesSorted(t *testing.T) {
	reg, err := NewRegistry(
		WithByteHandler("zebra", nopHandler),
		WithByteHandler("alpha", nopHandler),
		WithByteHandler("middle", nopHandler),
	)
	require.NoError(t, err)

	names := reg.Names()
	assert.Equal(t, []string{"alpha", "middle", "zebra"}, names)
	assert.Equal(t, 3, reg.Len())

	names[0] = "mutated"
	assert.Equal(t, "alpha", reg.Names()[0])
	assert.True(t, reg.Has("zebra"))
	assert.False(t, reg.Has("mutated"))
}

func TestHandlerRegistry_InvokeSetsHostContext(t *testing.T) {
	var captured string
	reg, err := NewRegistry(WithByteHandler("test_func", func(ctx context.Context, _ []byte) ([]byte, error) {
		captured = FunctionNameFrom(ctx)
		return nil, nil
	}))
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "test_func", nil)
	require.NoError(t, err)
	assert.Equal(t, "test_func", captured)
}
