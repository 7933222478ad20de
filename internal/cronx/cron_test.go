package cronx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, expr string) *Schedule {
	t.Helper()
	s, err := Parse(expr)
	require.NoError(t, err)
	return s
}

func at(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"* * * *",
		"* * * * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * 32 * *",
		"* * * 13 *",
		"* * * * 8",
		"a * * * *",
		"*/0 * * * *",
		"5-1 * * * *",
		"1,,2 * * * *",
		"1-2-3 * * * *",
	}
	for _, expr := range cases {
		_, err := Parse(expr)
		assert.ErrorIs(t, err, ErrInvalidExpression, "expr %q", expr)
	}
}

func TestNextBasic(t *testing.T) {
	cases := []struct {
		expr string
		from time.Time
		want time.Time
	}{
		{"* * * * *", at(2024, time.March, 10, 12, 30), at(2024, time.March, 10, 12, 31)},
		{"0 * * * *", at(2024, time.March, 10, 12, 30), at(2024, time.March, 10, 13, 0)},
		{"15 9 * * *", at(2024, time.March, 10, 12, 30), at(2024, time.March, 11, 9, 15)},
		{"0 0 1 * *", at(2024, time.March, 10, 12, 30), at(2024, time.April, 1, 0, 0)},
		{"*/15 * * * *", at(2024, time.March, 10, 12, 31), at(2024, time.March, 10, 12, 45)},
		{"0 9-17 * * *", at(2024, time.March, 10, 18, 0), at(2024, time.March, 11, 9, 0)},
		{"30 8 * * 1", at(2024, time.March, 10, 0, 0), at(2024, time.March, 11, 8, 30)}, // Mar 10 2024 is a Sunday
		{"0 0 29 2 *", at(2023, time.March, 1, 0, 0), at(2024, time.February, 29, 0, 0)},
		{"5 0 * 1 *", at(2024, time.March, 10, 0, 0), at(2025, time.January, 1, 0, 5)},
	}
	for _, tc := range cases {
		got, err := mustParse(t, tc.expr).Next(tc.from)
		require.NoError(t, err, "expr %q", tc.expr)
		assert.Equal(t, tc.want, got, "expr %q", tc.expr)
	}
}

func TestNextIsStrictlyAfter(t *testing.T) {
	// A matching instant must not be returned for itself.
	s := mustParse(t, "30 12 * * *")
	got, err := s.Next(at(2024, time.March, 10, 12, 30))
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.March, 11, 12, 30), got)
}

func TestSundayAliases(t *testing.T) {
	// 0 and 7 both mean Sunday; Mar 10 2024 is a Sunday.
	from := at(2024, time.March, 8, 0, 0)
	for _, expr := range []string{"0 6 * * 0", "0 6 * * 7"} {
		got, err := mustParse(t, expr).Next(from)
		require.NoError(t, err)
		assert.Equal(t, at(2024, time.March, 10, 6, 0), got, "expr %q", expr)
	}
}

func TestDomDowOrSemantics(t *testing.T) {
	// Both day fields restricted: a day matching either one fires.
	// "0 0 13 * 5" fires on the 13th of every month AND on every Friday.
	s := mustParse(t, "0 0 13 * 5")

	// From Mar 10 2024 (Sunday): next Friday is Mar 15, but the 13th
	// (a Wednesday) comes first.
	got, err := s.Next(at(2024, time.March, 10, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.March, 13, 0, 0), got)

	// From Mar 13: the following Friday the 15th matches via the dow field.
	got, err = s.Next(at(2024, time.March, 13, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.March, 15, 0, 0), got)
}

func TestDomRestrictedDowStar(t *testing.T) {
	s := mustParse(t, "0 0 13 * *")
	got, err := s.Next(at(2024, time.March, 14, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.April, 13, 0, 0), got)
}

func TestNoFeasibleTime(t *testing.T) {
	s := mustParse(t, "0 0 30 2 *")
	_, err := s.Next(at(2024, time.January, 1, 0, 0))
	assert.ErrorIs(t, err, ErrNoFeasibleTime)
}

func TestLeapDayAcrossCenturyGap(t *testing.T) {
	// 2100 is not a leap year, so the leap day after 2096-02-29 is
	// 2104-02-29, eight years out.
	s := mustParse(t, "0 0 29 2 *")
	next, err := s.Next(at(2096, time.March, 1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, at(2104, time.February, 29, 0, 0), next)
}

func TestNextStrictlyIncreasingAndMatching(t *testing.T) {
	exprs := []string{
		"*/7 * * * *",
		"0 */3 * * *",
		"30 4 1,15 * *",
		"0 12 * * 1-5",
		"0 0 29 2 1",
		"1-5/2 8-10 * 6 *",
	}
	for _, expr := range exprs {
		s := mustParse(t, expr)
		cur := at(2024, time.January, 1, 0, 0)
		for i := 0; i < 50; i++ {
			next, err := s.Next(cur)
			require.NoError(t, err, "expr %q", expr)
			require.True(t, next.After(cur), "expr %q: %v not after %v", expr, next, cur)
			require.True(t, s.Matches(next), "expr %q: %v does not match", expr, next)
			cur = next
		}
	}
}

func TestStepWithOffsetStart(t *testing.T) {
	// "10/15" in the minute field means 10,25,40,55.
	s := mustParse(t, "10/15 * * * *")
	got, err := s.Next(at(2024, time.March, 10, 12, 26))
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.March, 10, 12, 40), got)
}
