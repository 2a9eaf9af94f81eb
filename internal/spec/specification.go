// Package spec describes queries over an entity population and evaluates
// them in memory.
//
// The backing stores have no query capability, so every evaluation runs
// over the full population of one entity type. That is fine for
// configuration data (tens to low thousands of records per type) and is the
// documented ceiling of the engine.
package spec

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrInvalidSpecification = errors.New("spec: invalid specification")

// Identified is the minimum a record needs for deterministic ordering.
type Identified interface {
	ID() uuid.UUID
}

type Direction int

const (
	Unordered Direction = iota
	Ascending
	Descending
)

func (d Direction) String() string {
	switch d {
	case Ascending:
		return "asc"
	case Descending:
		return "desc"
	default:
		return "none"
	}
}

// Specification is immutable; every builder method returns a new value.
// The zero value matches everything, in input order, unpaged.
type Specification[T Identified] struct {
	predicate func(T) bool
	compare   func(a, b T) int
	direction Direction
	paged     bool
	offset    int
	limit     int
}

func All[T Identified]() Specification[T] {
	return Specification[T]{}
}

func Where[T Identified](pred func(T) bool) Specification[T] {
	return Specification[T]{predicate: pred}
}

// Where narrows the predicate with pred.
func (s Specification[T]) Where(pred func(T) bool) Specification[T] {
	return s.And(Where(pred))
}

// And keeps s's ordering and paging and requires both predicates.
func (s Specification[T]) And(other Specification[T]) Specification[T] {
	left, right := s.predicate, other.predicate
	switch {
	case right == nil:
	case left == nil:
		s.predicate = right
	default:
		s.predicate = func(v T) bool { return left(v) && right(v) }
	}
	return s
}

// Or keeps s's ordering and paging and accepts either predicate. A nil
// predicate on either side matches everything.
func (s Specification[T]) Or(other Specification[T]) Specification[T] {
	left, right := s.predicate, other.predicate
	if left == nil || right == nil {
		s.predicate = nil
		return s
	}
	s.predicate = func(v T) bool { return left(v) || right(v) }
	return s
}

func (s Specification[T]) Not() Specification[T] {
	inner := s.predicate
	if inner == nil {
		s.predicate = func(T) bool { return false }
		return s
	}
	s.predicate = func(v T) bool { return !inner(v) }
	return s
}

// OrderBy sorts ascending by compare. It replaces any earlier ordering.
func (s Specification[T]) OrderBy(compare func(a, b T) int) Specification[T] {
	s.compare = compare
	s.direction = Ascending
	return s
}

func (s Specification[T]) OrderByDescending(compare func(a, b T) int) Specification[T] {
	s.compare = compare
	s.direction = Descending
	return s
}

// Page skips offset matches and keeps at most limit. A zero limit yields an
// empty result.
func (s Specification[T]) Page(offset, limit int) Specification[T] {
	s.paged = true
	s.offset = offset
	s.limit = limit
	return s
}

func (s Specification[T]) Direction() Direction { return s.direction }

func (s Specification[T]) Paging() (offset, limit int, ok bool) {
	return s.offset, s.limit, s.paged
}

func (s Specification[T]) Validate() error {
	if s.direction != Unordered && s.compare == nil {
		return fmt.Errorf("%w: ordering direction without key", ErrInvalidSpecification)
	}
	if s.paged && (s.offset < 0 || s.limit < 0) {
		return fmt.Errorf("%w: offset and limit must be non-negative (offset=%d limit=%d)", ErrInvalidSpecification, s.offset, s.limit)
	}
	return nil
}

// Key builds an ascending comparison from a key extractor.
func Key[T any, K cmp.Ordered](key func(T) K) func(a, b T) int {
	return func(a, b T) int { return cmp.Compare(key(a), key(b)) }
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
