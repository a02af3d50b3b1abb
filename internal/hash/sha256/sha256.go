// Package sha256 digests crawled records for change detection downstream.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

var _ crawler.Hasher = (*Hasher)(nil)

// Hasher is a stateless crawler.Hasher.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex SHA-256 of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
