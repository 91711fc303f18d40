package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

func TestSessionService_Issue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	u := f.signUpVerified(t, "ada@example.com")

	sess, err := f.sessions.Issue(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, f.clock.Now().Add(15*time.Minute).Equal(sess.AccessExpiresAt))
	require.True(t, f.clock.Now().Add(24*time.Hour).Equal(sess.RefreshExpiresAt))

	access, err := f.sessions.VerifyAccess(sess.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, access.Subject)
	require.Equal(t, jwtx.TypeAccess, access.Type)

	refresh, err := f.sessions.VerifyRefresh(sess.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, access.ID, refresh.ID)

	t.Run("types are not interchangeable", func(t *testing.T) {
		_, err := f.sessions.VerifyAccess(sess.RefreshToken)
		require.ErrorIs(t, err, jwtx.ErrTokenType)
		_, err = f.sessions.VerifyRefresh(sess.AccessToken)
		require.ErrorIs(t, err, jwtx.ErrTokenType)
	})

	t.Run("access only", func(t *testing.T) {
		only, err := f.sessions.IssueAccess(ctx, u.ID)
		require.NoError(t, err)
		require.NotEmpty(t, only.AccessToken)
		require.Empty(t, only.RefreshToken)
	})
}

func TestSessionService_RefreshRotation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	u := f.signUpVerified(t, "ada@example.com")

	first, err := f.sessions.Issue(ctx, u.ID)
	require.NoError(t, err)

	second, err := f.sessions.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	t.Run("used token is revoked", func(t *testing.T) {
		_, err := f.sessions.Refresh(ctx, first.RefreshToken)
		require.True(t, authsdk.IsCode(err, authsdk.CodeTokenRevoked), "got %v", err)
		require.Equal(t, authsdk.KindUnauthorized, authsdk.As(err).Kind)
	})

	t.Run("new token still works once", func(t *testing.T) {
		third, err := f.sessions.Refresh(ctx, second.RefreshToken)
		require.NoError(t, err)
		require.NotEmpty(t, third.AccessToken)
	})
}

func TestSessionService_RefreshConcurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	u := f.signUpVerified(t, "ada@example.com")

	sess, err := f.sessions.Issue(ctx, u.ID)
	require.NoError(t, err)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.sessions.Refresh(ctx, sess.RefreshToken)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.True(t, authsdk.IsCode(err, authsdk.CodeTokenRevoked), "got %v", err)
	}
	require.Equal(t, 1, wins)
}

func TestSessionService_RefreshErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	u := f.signUpVerified(t, "ada@example.com")

	t.Run("missing", func(t *testing.T) {
		_, err := f.sessions.Refresh(ctx, "")
		e := authsdk.As(err)
		require.Equal(t, authsdk.KindUnauthorized, e.Kind)
		require.Equal(t, "Refresh token not found", e.Message)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := f.sessions.Refresh(ctx, "not.a.jwt")
		require.True(t, authsdk.IsCode(err, authsdk.CodeTokenInvalid))
	})

	t.Run("access token presented", func(t *testing.T) {
		sess, err := f.sessions.Issue(ctx, u.ID)
		require.NoError(t, err)
		_, err = f.sessions.Refresh(ctx, sess.AccessToken)
		require.True(t, authsdk.IsCode(err, authsdk.CodeTokenInvalid))
	})

	t.Run("unknown user", func(t *testing.T) {
		sess, err := f.sessions.Issue(ctx, "01JNOSUCHUSER0000000000000")
		require.NoError(t, err)
		_, err = f.sessions.Refresh(ctx, sess.RefreshToken)
		e := authsdk.As(err)
		require.Equal(t, authsdk.KindUnauthorized, e.Kind)
		require.Equal(t, "User not found", e.Message)
	})
}

func TestSessionService_RefreshExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	u := f.signUpVerified(t, "ada@example.com")

	sess, err := f.sessions.Issue(ctx, u.ID)
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)
	_, err = f.sessions.Refresh(ctx, sess.RefreshToken)
	require.True(t, authsdk.IsCode(err, authsdk.CodeTokenExpired), "got %v", err)
}

func TestSessionService_Revoke(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	u := f.signUpVerified(t, "ada@example.com")

	sess, err := f.sessions.Issue(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, f.sessions.Revoke(ctx, sess.RefreshToken, domain.RevokeLogout))
	require.NoError(t, f.sessions.Revoke(ctx, sess.RefreshToken, domain.RevokeLogout), "revoking twice is fine")
	require.NoError(t, f.sessions.Revoke(ctx, "garbage", domain.RevokeLogout))
	require.NoError(t, f.sessions.Revoke(ctx, "", domain.RevokeLogout))

	_, err = f.sessions.Refresh(ctx, sess.RefreshToken)
	require.True(t, authsdk.IsCode(err, authsdk.CodeTokenRevoked))
}
