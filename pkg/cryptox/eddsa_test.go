package cryptox

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateEd25519Key(t *testing.T) {
	pemKey, err := GenerateEd25519Key()
	require.NoError(t, err)

	block, _ := pem.Decode(pemKey)
	require.NotNil(t, block)
	require.Equal(t, "PRIVATE KEY", block.Type)

	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)
	_, ok := priv.(ed25519.PrivateKey)
	require.True(t, ok, "expected an Ed25519 key")
}

func TestLoadEd25519Key(t *testing.T) {
	t.Run("empty path is ephemeral", func(t *testing.T) {
		k, ephemeral, err := LoadEd25519Key("")
		require.NoError(t, err)
		require.True(t, ephemeral)
		require.NotEmpty(t, k)
	})

	t.Run("reads key from disk", func(t *testing.T) {
		k, err := GenerateEd25519Key()
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "signing.pem")
		require.NoError(t, os.WriteFile(path, k, 0o600))

		loaded, ephemeral, err := LoadEd25519Key(path)
		require.NoError(t, err)
		require.False(t, ephemeral)
		require.Equal(t, k, loaded)
	})

	t.Run("rejects non PEM", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "junk")
		require.NoError(t, os.WriteFile(path, []byte("junk"), 0o600))

		_, _, err := LoadEd25519Key(path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := LoadEd25519Key(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
	})
}
