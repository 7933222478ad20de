// Package cronx evaluates standard 5-field cron expressions
// (minute hour day-of-month month day-of-week).
//
// Field grammar per field: "*", a single value, a range "a-b", a step
// "*/n" or "a-b/n", or a comma-separated list of those. Day-of-week
// accepts 0-7 where both 0 and 7 mean Sunday. When day-of-month and
// day-of-week are both restricted, a date matching either one fires
// (conventional cron OR semantics).
package cronx

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidExpression reports a malformed expression at parse time.
	ErrInvalidExpression = errors.New("invalid cron expression")
	// ErrNoFeasibleTime reports that no matching instant exists within the
	// evaluation horizon (e.g. "0 0 30 2 *").
	ErrNoFeasibleTime = errors.New("no feasible time within horizon")
)

// horizon bounds the forward scan in Next. Expressions that match nothing
// inside this window are treated as infeasible. Eight years covers the
// longest gap between leap days (2096-02-29 to 2104-02-29, since 2100 is
// not a leap year) while still rejecting dates like Feb 30.
const horizon = 8 * 366 * 24 * time.Hour

type fieldSpec struct {
	name string
	min  int
	max  int
}

var fields = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// Schedule is a parsed cron expression. The zero value is not valid; use Parse.
type Schedule struct {
	minute uint64
	hour   uint32
	dom    uint32
	month  uint16
	dow    uint8

	// Unrestricted ("*") day fields change the dom/dow combination rule.
	domStar bool
	dowStar bool

	expr string
}

// Parse validates a 5-field cron expression and compiles it into a Schedule.
// All malformed input (wrong field count, out-of-range values, unparsable
// tokens) is rejected here; Next never fails on syntax.
func Parse(expr string) (*Schedule, error) {
	parts := strings.Fields(strings.TrimSpace(expr))
	if len(parts) != 5 {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidExpression, len(parts))
	}
	s := &Schedule{expr: expr}
	for i, part := range parts {
		bits, star, err := parseField(part, fields[i])
		if err != nil {
			return nil, err
		}
		switch i {
		case 0:
			s.minute = bits
		case 1:
			s.hour = uint32(bits)
		case 2:
			s.dom = uint32(bits)
			s.domStar = star
		case 3:
			s.month = uint16(bits)
		case 4:
			// 7 is an alias for Sunday.
			if bits&(1<<7) != 0 {
				bits |= 1
				bits &^= 1 << 7
			}
			s.dow = uint8(bits)
			s.dowStar = star
		}
	}
	return s, nil
}

// String returns the original expression text.
func (s *Schedule) String() string { return s.expr }

// parseField compiles one field into a bitset of admissible values. The
// returned star flag is true only for a bare "*" (no step), which is what
// the dom/dow OR rule keys on.
func parseField(field string, spec fieldSpec) (uint64, bool, error) {
	var bits uint64
	star := field == "*"
	for _, token := range strings.Split(field, ",") {
		b, err := parseToken(token, spec)
		if err != nil {
			return 0, false, err
		}
		bits |= b
	}
	if bits == 0 {
		return 0, false, fmt.Errorf("%w: empty %s field %q", ErrInvalidExpression, spec.name, field)
	}
	return bits, star, nil
}

func parseToken(token string, spec fieldSpec) (uint64, error) {
	if token == "" {
		return 0, fmt.Errorf("%w: empty token in %s field", ErrInvalidExpression, spec.name)
	}
	step := 1
	rangePart := token
	if idx := strings.IndexByte(token, '/'); idx >= 0 {
		rangePart = token[:idx]
		n, err := strconv.Atoi(token[idx+1:])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: bad step %q in %s field", ErrInvalidExpression, token, spec.name)
		}
		step = n
	}

	lo, hi := spec.min, spec.max
	switch {
	case rangePart == "*":
		// Full range.
	case strings.Contains(rangePart, "-"):
		var err error
		lo, hi, err = parseRange(rangePart, spec)
		if err != nil {
			return 0, err
		}
	default:
		v, err := parseValue(rangePart, spec)
		if err != nil {
			return 0, err
		}
		lo = v
		if step == 1 {
			hi = v
		}
		// "a/n" means a through the field maximum, stepped by n.
	}

	var bits uint64
	for v := lo; v <= hi; v += step {
		bits |= 1 << uint(v)
	}
	return bits, nil
}

func parseRange(s string, spec fieldSpec) (int, int, error) {
	lohi := strings.SplitN(s, "-", 2)
	lo, err := parseValue(lohi[0], spec)
	if err != nil {
		return 0, 0, err
	}
	hi, err := parseValue(lohi[1], spec)
	if err != nil {
		return 0, 0, err
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("%w: inverted range %q in %s field", ErrInvalidExpression, s, spec.name)
	}
	return lo, hi, nil
}

func parseValue(s string, spec fieldSpec) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: unparsable value %q in %s field", ErrInvalidExpression, s, spec.name)
	}
	if v < spec.min || v > spec.max {
		return 0, fmt.Errorf("%w: value %d out of range %d-%d in %s field",
			ErrInvalidExpression, v, spec.min, spec.max, spec.name)
	}
	return v, nil
}

// Next returns the earliest instant strictly after t that satisfies the
// schedule, at minute resolution, in t's location. It scans forward from
// t plus one minute; if nothing matches within the horizon it returns
// ErrNoFeasibleTime.
func (s *Schedule) Next(t time.Time) (time.Time, error) {
	cur := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(horizon)
	for cur.Before(limit) {
		if !s.monthMatches(cur) {
			// Jump to the first minute of the next month.
			cur = time.Date(cur.Year(), cur.Month()+1, 1, 0, 0, 0, 0, cur.Location())
			continue
		}
		if !s.dayMatches(cur) {
			cur = time.Date(cur.Year(), cur.Month(), cur.Day()+1, 0, 0, 0, 0, cur.Location())
			continue
		}
		if s.hour&(1<<uint(cur.Hour())) == 0 {
			cur = time.Date(cur.Year(), cur.Month(), cur.Day(), cur.Hour()+1, 0, 0, 0, cur.Location())
			continue
		}
		if s.minute&(1<<uint(cur.Minute())) == 0 {
			cur = cur.Add(time.Minute)
			continue
		}
		return cur, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrNoFeasibleTime, s.expr)
}

// Matches reports whether the given instant (at minute resolution)
// satisfies every field predicate.
func (s *Schedule) Matches(t time.Time) bool {
	return s.minute&(1<<uint(t.Minute())) != 0 &&
		s.hour&(1<<uint(t.Hour())) != 0 &&
		s.monthMatches(t) &&
		s.dayMatches(t)
}

func (s *Schedule) monthMatches(t time.Time) bool {
	return s.month&(1<<uint(t.Month())) != 0
}

// dayMatches applies the standard dom/dow combination: if exactly one of
// the two fields is restricted it alone decides; if both are restricted a
// day matching either qualifies.
func (s *Schedule) dayMatches(t time.Time) bool {
	domOK := s.dom&(1<<uint(t.Day())) != 0
	dowOK := s.dow&(1<<uint(t.Weekday())) != 0
	switch {
	case s.domStar && s.dowStar:
		return true
	case s.domStar:
		return dowOK
	case s.dowStar:
		return domOK
	default:
		return domOK || dowOK
	}
}
