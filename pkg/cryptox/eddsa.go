package cryptox

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// GenerateEd25519Key generates a new Ed25519 private key.
// Returns the private key in PEM format (PKCS8).
func GenerateEd25519Key() ([]byte, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate Ed25519 key: %w", err)
	}

	// Ed25519 keys are always marshaled as PKCS8
	privateKeyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to marshal PKCS8 key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateKeyBytes}), nil
}

// LoadEd25519Key reads a PKCS8 PEM key from path. When path is empty a fresh
// key is generated and ephemeral is true: sessions signed with it do not
// survive a restart.
func LoadEd25519Key(path string) (pemKey []byte, ephemeral bool, err error) {
	if path == "" {
		k, err := GenerateEd25519Key()
		return k, true, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("cryptox: read signing key: %w", err)
	}
	if block, _ := pem.Decode(b); block == nil {
		return nil, false, errors.New("cryptox: signing key is not PEM encoded")
	}
	return b, false, nil
}
