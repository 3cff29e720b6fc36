package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// GenerateRSAKey generates an RSA private key and returns it PEM encoded (PKCS1).
func GenerateRSAKey(bits int) ([]byte, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("cryptox: RSA key size must be at least 2048 bits")
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate RSA key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), nil
}

// LoadOrGenerateRSAKey reads a PEM key from path. An empty path yields an
// ephemeral key that only lives as long as the process.
func LoadOrGenerateRSAKey(path string, bits int) (pemBytes []byte, ephemeral bool, err error) {
	if path == "" {
		pemBytes, err = GenerateRSAKey(bits)
		return pemBytes, true, err
	}

	pemBytes, err = os.ReadFile(path) // #nosec G304 - operator supplied path
	if err != nil {
		return nil, false, fmt.Errorf("cryptox: read key %q: %w", path, err)
	}
	return pemBytes, false, nil
}
