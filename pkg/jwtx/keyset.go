package jwtx

import (
	"crypto/rsa"
	"sync"
)

// KeySet maps kid to RSA public key. Safe for concurrent use: the federated
// set is swapped wholesale on refresh while requests verify against it.
type KeySet struct {
	mu   sync.RWMutex
	jwks JWKS
	pub  map[string]*rsa.PublicKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{pub: make(map[string]*rsa.PublicKey)}
}

// AddJWK parses and registers a single key.
func (k *KeySet) AddJWK(j JWK) error {
	key, err := j.RSAPublicKey()
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[j.Kid] = key
	k.jwks.Keys = append(k.jwks.Keys, j)
	return nil
}

// Get returns the public key for kid.
func (k *KeySet) Get(kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrUnknownKID
}

// PublicJWKS returns a snapshot for HTTP serving.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return JWKS{Keys: append([]JWK(nil), k.jwks.Keys...)}
}

// Len reports how many keys are loaded.
func (k *KeySet) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub)
}

// IsReady is true once at least one key is loaded.
func (k *KeySet) IsReady() bool { return k.Len() > 0 }

// ResetFromJWKS replaces every key. Keys that are not RSA are skipped since
// identity providers may publish encryption or EC keys alongside.
func (k *KeySet) ResetFromJWKS(jwks JWKS) (int, error) {
	next := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	kept := make([]JWK, 0, len(jwks.Keys))
	for _, j := range jwks.Keys {
		if j.Kty != "RSA" || j.Kid == "" {
			continue
		}
		key, err := j.RSAPublicKey()
		if err != nil {
			return 0, err
		}
		next[j.Kid] = key
		kept = append(kept, j)
	}

	k.mu.Lock()
	k.pub = next
	k.jwks = JWKS{Keys: kept}
	k.mu.Unlock()

	return len(next), nil
}
