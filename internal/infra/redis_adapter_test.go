package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoRedisAdapterRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)

	a, err := NewGoRedisAdapter(srv.Addr(), "", 0)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.Ping(ctx))
	require.NoError(t, a.Set(ctx, "tx_class:test", []byte(`{"ok":true}`), time.Minute))

	val, err := a.Get(ctx, "tx_class:test")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(val))

	require.NoError(t, a.Del(ctx, "tx_class:test"))
	_, err = a.Get(ctx, "tx_class:test")
	assert.ErrorContains(t, err, "key not found")

	assert.NotNil(t, a.Client())
}

func TestGoRedisAdapterConnectFailure(t *testing.T) {
	_, err := NewGoRedisAdapter("127.0.0.1:1", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}
