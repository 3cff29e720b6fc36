package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/gateway/pkg/cryptox"
	"github.com/aussiebroadwan/gateway/pkg/jwtx"
)

// InitCodec loads the self-signing key and builds the credential codec.
//
// With GATEWAY_KEY_FILE set the PEM key is read from disk and claims survive
// restarts. Without it a fresh RSA key is generated on startup and every
// claim issued by a previous process stops verifying.
func InitCodec(cfg Config, logger *slog.Logger) (*jwtx.Codec, error) {
	pemBytes, ephemeral, err := cryptox.LoadOrGenerateRSAKey(cfg.KeyFile, cfg.RSABits)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	signer, err := jwtx.NewSignerRS256(cfg.KeyID, pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	codec, err := jwtx.NewCodec(jwtx.CodecOptions{
		Signer:   signer,
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		TTL:      cfg.ClaimTTL,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("signing key loaded",
		"kid", codec.SelfKID(),
		"issuer", cfg.Issuer,
		"ephemeral", ephemeral,
	)
	if ephemeral {
		logger.Warn("no GATEWAY_KEY_FILE set; claims issued before this start are now invalid")
	}
	return codec, nil
}
