package cryptox

import (
	"regexp"
	"testing"

	"github.com/pquerna/otp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashSecret(t *testing.T) {
	t.Parallel()

	hash, err := HashSecret("123456", bcrypt.MinCost)
	require.NoError(t, err)
	require.NotEqual(t, "123456", hash)

	require.True(t, CompareSecret("123456", hash))
	require.False(t, CompareSecret("654321", hash))
	require.False(t, CompareSecret("123456", "not-a-bcrypt-hash"))

	again, err := HashSecret("123456", bcrypt.MinCost)
	require.NoError(t, err)
	require.NotEqual(t, hash, again, "bcrypt must salt every hash")
}

func TestHashSecretCostFallback(t *testing.T) {
	t.Parallel()

	hash, err := HashSecret("x", 99)
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	require.Equal(t, DefaultSecretCost, cost)
}

func TestGenerateOTP(t *testing.T) {
	t.Parallel()

	six := regexp.MustCompile(`^[0-9]{6}$`)
	seen := make(map[string]struct{})
	leading := make(map[byte]int)
	for range 200 {
		code, err := GenerateOTP(otp.DigitsSix)
		require.NoError(t, err)
		require.Regexp(t, six, code)
		seen[code] = struct{}{}
		leading[code[0]]++
	}
	// 200 draws from 10^6 values colliding more than a handful of times
	// would mean the draws are not independent.
	require.Greater(t, len(seen), 190)
	// Every leading digit, zero included, shows up in a uniform draw.
	require.Len(t, leading, 10)

	eight, err := GenerateOTP(otp.DigitsEight)
	require.NoError(t, err)
	require.Len(t, eight, 8)

	_, err = GenerateOTP(otp.Digits(4))
	require.Error(t, err)
}
