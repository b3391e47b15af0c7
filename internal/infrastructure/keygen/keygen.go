package keygen

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// DefaultByteLength is the number of random bytes behind each token value
const DefaultByteLength = 32

// ErrInvalidLength is returned for non-positive byte lengths
var ErrInvalidLength = errors.New("byte length must be positive")

// Generator produces URL-safe opaque keys from a secure random source
type Generator struct {
	reader io.Reader
}

// New creates a Generator reading from crypto/rand
func New() *Generator {
	return &Generator{reader: rand.Reader}
}

// NewWithReader creates a Generator reading from r
func NewWithReader(r io.Reader) *Generator {
	return &Generator{reader: r}
}

// Generate returns byteLength random bytes encoded as unpadded base64url
func (g *Generator) Generate(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", ErrInvalidLength
	}

	b := make([]byte, byteLength)
	if _, err := io.ReadFull(g.reader, b); err != nil {
		return "", fmt.Errorf("error reading random bytes: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
