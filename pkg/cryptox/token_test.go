package cryptox

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantLen int
	}{
		{"128-bit token", TokenSize128, 22},
		{"256-bit token", TokenSize256, 43},
		{"512-bit token", TokenSize512, 86},
		{"custom size", 24, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.Len(t, token, tt.wantLen)

			token2, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEqual(t, token, token2, "tokens should be unique")
		})
	}
}

func TestGenerateToken_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		token, err := GenerateToken(size)
		require.Error(t, err)
		require.Empty(t, token)

		hexToken, err := GenerateHexToken(size)
		require.Error(t, err)
		require.Empty(t, hexToken)
	}
}

func TestGenerateHexToken(t *testing.T) {
	token, err := GenerateHexToken(32)
	require.NoError(t, err)
	require.Len(t, token, 64)

	_, err = hex.DecodeString(token)
	require.NoError(t, err)
}

func TestFingerprintToken(t *testing.T) {
	a := FingerprintToken("refresh-token")
	b := FingerprintToken("refresh-token")
	c := FingerprintToken("refresh-token2")

	require.Equal(t, a, b, "fingerprint must be deterministic")
	require.NotEqual(t, a, c)
	require.Len(t, a, 43)
}
