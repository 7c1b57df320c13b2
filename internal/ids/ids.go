// Package ids issues identifiers for persisted records.
package ids

import (
	"errors"

	"github.com/google/uuid"
)

var errSequenceExhausted = errors.New("ids: sequence exhausted")

// Provider issues new record identifiers.
type Provider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a Provider that issues UUIDv7 identifiers.
func NewUUIDProvider() Provider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// Sequence is a deterministic Provider that returns the supplied identifiers in order.
type Sequence struct {
	values []string
	next   int
}

// NewSequence constructs a Sequence over values.
func NewSequence(values ...string) *Sequence {
	return &Sequence{values: append([]string(nil), values...)}
}

func (s *Sequence) NewID() (string, error) {
	if s.next >= len(s.values) {
		return "", errSequenceExhausted
	}
	value := s.values[s.next]
	s.next++
	return value, nil
}
