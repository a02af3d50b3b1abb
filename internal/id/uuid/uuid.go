// Package uuid generates run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUID v7 strings, optionally prefixed so run
// ids are recognizable in archive paths and logs.
type Generator struct {
	prefix string
}

// NewGenerator creates a Generator. prefix may be empty.
func NewGenerator(prefix string) *Generator {
	return &Generator{prefix: prefix}
}

// NewID returns a new run id.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return g.prefix + id.String(), nil
}
