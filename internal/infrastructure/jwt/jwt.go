// Package jwt signs the session tokens of authenticated resource owners.
package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// RSAKeySize is the size of generated signing keys
const RSAKeySize = 2048

// ErrInvalidToken is returned for tokens that fail validation
var ErrInvalidToken = errors.New("invalid token")

// Claims are the session token claims
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWT signs and validates session tokens with an RSA key pair
type JWT struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	keyID      string
	duration   time.Duration
	now        func() time.Time
}

// New creates a JWT signer with a fresh key pair that lives as long as the process
func New(duration time.Duration) (*JWT, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, RSAKeySize)
	if err != nil {
		return nil, err
	}
	return newJWT(privateKey, duration), nil
}

// LoadOrGenerate reads a PEM encoded RSA key from path, generating and
// writing one first if the file does not exist
func LoadOrGenerate(path string, duration time.Duration, logger *zap.Logger) (*JWT, error) {
	privateKey, err := loadKey(path)
	if err == nil {
		logger.Info("Loaded session signing key", zap.String("path", path))
		return newJWT(privateKey, duration), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	privateKey, err = rsa.GenerateKey(rand.Reader, RSAKeySize)
	if err != nil {
		return nil, err
	}
	if err := writeKey(path, privateKey); err != nil {
		return nil, err
	}

	logger.Info("Generated session signing key", zap.String("path", path))
	return newJWT(privateKey, duration), nil
}

func newJWT(privateKey *rsa.PrivateKey, duration time.Duration) *JWT {
	return &JWT{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		keyID:      keyID(&privateKey.PublicKey),
		duration:   duration,
		now:        time.Now,
	}
}

func loadKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("error parsing private key: %w", err)
	}
	return privateKey, nil
}

func writeKey(path string, privateKey *rsa.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("error creating key directory: %w", err)
	}

	data := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("error writing private key: %w", err)
	}
	return nil
}

// keyID derives a stable key identifier from the public key
func keyID(key *rsa.PublicKey) string {
	data := append(key.N.Bytes(), byte(key.E))
	hash := sha256.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// PublicKey returns the verification key
func (j *JWT) PublicKey() *rsa.PublicKey {
	return j.publicKey
}

// Issue signs a session token for subject
func (j *JWT) Issue(subject string, roles []string) (string, time.Time, error) {
	now := j.now()
	expiresAt := now.Add(j.duration)

	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        ulid.Make().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = j.keyID

	signed, err := token.SignedString(j.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses a session token and returns its claims
func (j *JWT) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.publicKey, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
