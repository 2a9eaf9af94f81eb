package spec

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type item struct {
	id    uuid.UUID
	name  string
	price int
}

func (i item) ID() uuid.UUID { return i.id }

func fixedID(n byte) uuid.UUID {
	var id uuid.UUID
	id[15] = n
	return id
}

func population() []item {
	return []item{
		{id: fixedID(5), name: "espresso", price: 3},
		{id: fixedID(1), name: "latte", price: 4},
		{id: fixedID(4), name: "mocha", price: 4},
		{id: fixedID(2), name: "tea", price: 2},
		{id: fixedID(3), name: "cocoa", price: 3},
	}
}

func names(items []item) []string {
	out := make([]string, 0, len(items))
	for _, i := range items {
		out = append(out, i.name)
	}
	return out
}

func byPrice() func(a, b item) int { return Key(func(i item) int { return i.price }) }

func TestAbsentPredicateMatchesEverything(t *testing.T) {
	t.Parallel()

	got, err := Evaluate(population(), All[item]())
	require.NoError(t, err)
	require.Equal(t, names(population()), names(got))
	require.True(t, Matches(item{}, All[item]()))
}

func TestWhereFilters(t *testing.T) {
	t.Parallel()

	s := Where(func(i item) bool { return i.price >= 4 })
	got, err := Evaluate(population(), s)
	require.NoError(t, err)
	require.Equal(t, []string{"latte", "mocha"}, names(got))
	require.Equal(t, 2, Count(population(), s))
}

func TestAndOrNot(t *testing.T) {
	t.Parallel()

	cheap := Where(func(i item) bool { return i.price <= 3 })
	hasO := Where(func(i item) bool { return strings.Contains(i.name, "o") })

	got, err := Evaluate(population(), cheap.And(hasO))
	require.NoError(t, err)
	require.Equal(t, []string{"espresso", "cocoa"}, names(got))

	got, err = Evaluate(population(), cheap.Or(hasO))
	require.NoError(t, err)
	require.Equal(t, []string{"espresso", "mocha", "tea", "cocoa"}, names(got))

	got, err = Evaluate(population(), cheap.Not())
	require.NoError(t, err)
	require.Equal(t, []string{"latte", "mocha"}, names(got))

	got, err = Evaluate(population(), All[item]().Not())
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = Evaluate(population(), All[item]().Or(cheap))
	require.NoError(t, err)
	require.Len(t, got, 5)
}

func TestOrderingBreaksTiesByIdentity(t *testing.T) {
	t.Parallel()

	got, err := Evaluate(population(), All[item]().OrderBy(byPrice()))
	require.NoError(t, err)
	require.Equal(t, []string{"tea", "cocoa", "espresso", "latte", "mocha"}, names(got))

	got, err = Evaluate(population(), All[item]().OrderByDescending(byPrice()))
	require.NoError(t, err)
	require.Equal(t, []string{"latte", "mocha", "cocoa", "espresso", "tea"}, names(got))
}

func TestLaterOrderingReplacesEarlier(t *testing.T) {
	t.Parallel()

	s := All[item]().OrderByDescending(byPrice()).OrderBy(Key(func(i item) string { return i.name }))
	require.Equal(t, Ascending, s.Direction())
	got, err := Evaluate(population(), s)
	require.NoError(t, err)
	require.Equal(t, []string{"cocoa", "espresso", "latte", "mocha", "tea"}, names(got))
}

func TestPaging(t *testing.T) {
	t.Parallel()

	ordered := All[item]().OrderBy(Key(func(i item) string { return i.name }))

	got, err := Evaluate(population(), ordered.Page(1, 2))
	require.NoError(t, err)
	require.Equal(t, []string{"espresso", "latte"}, names(got))

	got, err = Evaluate(population(), ordered.Page(4, 10))
	require.NoError(t, err)
	require.Equal(t, []string{"tea"}, names(got))
}

func TestPagingEdgeCases(t *testing.T) {
	t.Parallel()

	got, err := Evaluate(population(), All[item]().Page(0, 0))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)

	got, err = Evaluate(population(), All[item]().Page(99, 3))
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = Evaluate(population(), All[item]().Page(-1, 3))
	require.ErrorIs(t, err, ErrInvalidSpecification)
	_, err = Evaluate(population(), All[item]().Page(0, -3))
	require.ErrorIs(t, err, ErrInvalidSpecification)
}

func TestOrderingWithoutKeyIsInvalid(t *testing.T) {
	t.Parallel()

	_, err := Evaluate(population(), All[item]().OrderBy(nil))
	require.ErrorIs(t, err, ErrInvalidSpecification)
}

func TestEvaluateIsDeterministicAndDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	input := population()
	before := names(input)
	s := Where(func(i item) bool { return i.price > 2 }).OrderBy(byPrice()).Page(1, 2)

	first, err := Evaluate(input, s)
	require.NoError(t, err)
	second, err := Evaluate(input, s)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, before, names(input))
}

func TestSpecificationsAreImmutable(t *testing.T) {
	t.Parallel()

	base := Where(func(i item) bool { return i.price > 2 })
	_ = base.Page(0, 1).OrderBy(byPrice())

	_, _, paged := base.Paging()
	require.False(t, paged)
	require.Equal(t, Unordered, base.Direction())
}
