package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrKeyNotFound indicates no verification key is registered for a kid.
var ErrKeyNotFound = errors.New("key not found")

// KeyProvider supplies public keys for verifying bearer tokens. The engine
// never signs tokens, so only the verification side is modeled.
type KeyProvider interface {
	GetVerificationKey(kid string) (*rsa.PublicKey, error)
}

// FileKeyProvider reads PEM-encoded RSA keys from a directory. The file name
// without extension becomes the kid. Private keys contribute their public half
// so the same key material works in development.
type FileKeyProvider struct {
	keys map[string]*rsa.PublicKey
}

// NewFileKeyProvider loads every parseable key under keyDir.
func NewFileKeyProvider(keyDir string) (*FileKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("read key directory: %w", err)
	}

	provider := &FileKeyProvider{keys: make(map[string]*rsa.PublicKey)}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, file.Name())
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file %s: %w", path, err)
		}

		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("decode PEM block from %s", path)
		}

		kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))

		key, err := parseRSAKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse key from file %s: %w", path, err)
		}
		provider.keys[kid] = key
	}

	if len(provider.keys) == 0 {
		return nil, errors.New("no verification keys found")
	}

	return provider, nil
}

func parseRSAKey(der []byte) (*rsa.PublicKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return &key.PublicKey, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return &rsaKey.PublicKey, nil
		}
	}
	if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKIXPublicKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return rsaKey, nil
		}
	}
	return nil, errors.New("not an RSA key")
}

// GetVerificationKey returns the public key registered for kid.
func (p *FileKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// StaticKeyProvider serves a fixed kid-to-key map. Used in tests.
type StaticKeyProvider map[string]*rsa.PublicKey

// GetVerificationKey returns the key registered for kid.
func (p StaticKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}
