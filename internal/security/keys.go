package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"
)

// ErrInvalidKey is returned when PEM, key type or secret configuration is invalid.
var ErrInvalidKey = errors.New("invalid key")

// SigningKeys is the key material for a TokenProvider. Access tokens are signed with
// PrivateKey when set, otherwise with AccessSecret (HS256). Refresh tokens are always
// signed with RefreshSecret, which must differ from AccessSecret.
type SigningKeys struct {
	AccessSecret  []byte
	RefreshSecret []byte
	PrivateKey    crypto.Signer
	PublicKey     crypto.PublicKey
}

// LoadSigningKeys builds SigningKeys from config values. privatePEM and publicPEM may be
// inline PEM or file paths and must be set together.
func LoadSigningKeys(accessSecret, refreshSecret, privatePEM, publicPEM string) (SigningKeys, error) {
	keys := SigningKeys{
		AccessSecret:  []byte(accessSecret),
		RefreshSecret: []byte(refreshSecret),
	}
	if strings.TrimSpace(privatePEM) != "" || strings.TrimSpace(publicPEM) != "" {
		signer, err := ParsePrivateKey(privatePEM)
		if err != nil {
			return SigningKeys{}, err
		}
		pub, err := ParsePublicKey(publicPEM)
		if err != nil {
			return SigningKeys{}, err
		}
		keys.PrivateKey = signer
		keys.PublicKey = pub
	}
	return keys, keys.validate()
}

func (k SigningKeys) validate() error {
	if len(k.RefreshSecret) == 0 {
		return ErrInvalidKey
	}
	if k.PrivateKey == nil && len(k.AccessSecret) == 0 {
		return ErrInvalidKey
	}
	if k.PrivateKey != nil && (k.PublicKey == nil || KeyAlg(k.PublicKey) == "") {
		return ErrInvalidKey
	}
	if len(k.AccessSecret) > 0 && string(k.AccessSecret) == string(k.RefreshSecret) {
		return ErrInvalidKey
	}
	return nil
}

// LoadPEM reads content from path if s does not look like inline PEM; otherwise returns s as bytes.
// Literal "\n" sequences in inline PEM (common in env files) become newlines.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded private key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// ParsePublicKey parses a PEM-encoded public key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// KeyAlg returns "RS256" for RSA and "ES256" for ECDSA P-256; empty otherwise.
func KeyAlg(pub crypto.PublicKey) string {
	switch pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		return "ES256"
	default:
		return ""
	}
}
