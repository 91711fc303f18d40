package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

// signingKeyID is the kid stamped on every token. There is one active key.
const signingKeyID = "gatehouse-1"

// InitSigner builds the session token signer for the configured algorithm.
//
// Algorithms:
//   - "EdDSA": Ed25519 key read from JWT_PRIVATE_KEY_FILE. Without a file a
//     key is generated in memory and every session ends on restart.
//   - "HS256": shared secret from JWT_SECRET.
func InitSigner(cfg Config, logger *slog.Logger) (jwtx.Signer, error) {
	switch cfg.JWTAlgorithm {
	case "HS256":
		signer, err := jwtx.NewSignerHS256(signingKeyID, []byte(cfg.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize HS256 signer: %w", err)
		}
		logger.Info("session tokens signed with shared secret", "algorithm", signer.Alg())
		return signer, nil

	default:
		pem, ephemeral, err := cryptox.LoadEd25519Key(cfg.JWTPrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing key: %w", err)
		}
		signer, err := jwtx.NewSignerEdDSA(signingKeyID, pem)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize EdDSA signer: %w", err)
		}
		if ephemeral {
			logger.Warn("generated ephemeral signing key - all sessions end on restart")
		} else {
			logger.Info("signing key loaded", "algorithm", signer.Alg(), "path", cfg.JWTPrivateKeyFile)
		}
		return signer, nil
	}
}
