package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
)

func TestThrottle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := newTestCache(t)
	th := &Throttle{Cache: c, Max: 3, Window: time.Minute, CaptchaThreshold: 1}

	n, err := th.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.Zero(t, n)

	for i := 1; i <= 3; i++ {
		n, err := th.Increment(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.Equal(t, i, n)
	}
	require.True(t, th.RequiresCaptcha(2))
	require.False(t, th.RequiresCaptcha(1))

	t.Run("locked out", func(t *testing.T) {
		n, err := th.Check(ctx, "10.0.0.1")
		require.Equal(t, 3, n)
		e := authsdk.As(err)
		require.Equal(t, authsdk.KindTooManyRequests, e.Kind)
		require.Equal(t, 60, e.Details["retryAfter"])
	})

	t.Run("other addresses unaffected", func(t *testing.T) {
		_, err := th.Check(ctx, "10.0.0.2")
		require.NoError(t, err)
	})

	t.Run("window lapses", func(t *testing.T) {
		mr.FastForward(61 * time.Second)
		n, err := th.Check(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("reset", func(t *testing.T) {
		_, err := th.Increment(ctx, "10.0.0.3")
		require.NoError(t, err)
		require.NoError(t, th.Reset(ctx, "10.0.0.3"))
		n, err := th.Current(ctx, "10.0.0.3")
		require.NoError(t, err)
		require.Zero(t, n)
	})
}

func TestThrottle_Defaults(t *testing.T) {
	t.Parallel()
	th := &Throttle{}
	require.Equal(t, DefaultMaxSignInAttempts, th.max())
	require.Equal(t, DefaultBlockTTL, th.window())
	require.False(t, th.RequiresCaptcha(DefaultCaptchaThreshold))
	require.True(t, th.RequiresCaptcha(DefaultCaptchaThreshold+1))
}

func TestThrottle_CacheDown(t *testing.T) {
	t.Parallel()
	c, mr := newTestCache(t)
	th := &Throttle{Cache: c}
	mr.Close()

	_, err := th.Check(context.Background(), "10.0.0.1")
	require.Equal(t, authsdk.KindInternal, authsdk.As(err).Kind)
}
