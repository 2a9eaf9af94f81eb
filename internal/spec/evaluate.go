package spec

import "slices"

// Matches reports whether record satisfies the predicate of s.
func Matches[T Identified](record T, s Specification[T]) bool {
	return s.predicate == nil || s.predicate(record)
}

// Count returns the number of records matching s, ignoring paging.
func Count[T Identified](records []T, s Specification[T]) int {
	n := 0
	for _, r := range records {
		if Matches(r, s) {
			n++
		}
	}
	return n
}

// Evaluate filters, orders and pages records. The input slice is not
// modified. Equal keys are ordered by identity so the result is stable
// across calls.
func Evaluate[T Identified](records []T, s Specification[T]) ([]T, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	out := make([]T, 0, len(records))
	for _, r := range records {
		if Matches(r, s) {
			out = append(out, r)
		}
	}

	if s.direction != Unordered {
		compare := s.compare
		desc := s.direction == Descending
		slices.SortStableFunc(out, func(a, b T) int {
			c := compare(a, b)
			if desc {
				c = -c
			}
			if c != 0 {
				return c
			}
			return compareIDs(a.ID(), b.ID())
		})
	}

	if !s.paged {
		return out, nil
	}
	if s.limit == 0 || s.offset >= len(out) {
		return []T{}, nil
	}
	end := s.offset + s.limit
	if end > len(out) || end < 0 {
		end = len(out)
	}
	return out[s.offset:end], nil
}
