package cron

import (
	"strconv"
	"strings"
	"time"
)

// Field identifies one of the five cron fields.
type Field int

const (
	Minute Field = iota
	Hour
	DayOfMonth
	Month
	DayOfWeek
)

func (f Field) String() string {
	switch f {
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case DayOfMonth:
		return "day-of-month"
	case Month:
		return "month"
	case DayOfWeek:
		return "day-of-week"
	default:
		return "field(" + strconv.Itoa(int(f)) + ")"
	}
}

type bounds struct{ min, max int }

var fieldBounds = [5]bounds{
	Minute:     {0, 59},
	Hour:       {0, 23},
	DayOfMonth: {1, 31},
	Month:      {1, 12},
	DayOfWeek:  {0, 6},
}

// Bounds returns the inclusive domain of f.
func (f Field) Bounds() (min, max int) {
	b := fieldBounds[f]
	return b.min, b.max
}

var descriptors = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

// searchYears bounds Next. A Feb 29 that must also fall on a given weekday
// recurs within 28 years; anything beyond that cannot match at all.
const searchYears = 32

// Schedule is a parsed cron expression. It is immutable and safe for
// concurrent use.
type Schedule struct {
	expr string
	loc  *time.Location
	sets [5]uint64
}

// Parse parses expr. Occurrences are computed in the location of the time
// passed to Next.
func Parse(expr string) (*Schedule, error) {
	return ParseIn(expr, nil)
}

// ParseIn parses expr and pins occurrence computation to loc.
func ParseIn(expr string, loc *time.Location) (*Schedule, error) {
	src := strings.TrimSpace(expr)
	if d, ok := descriptors[strings.ToLower(src)]; ok {
		src = d
	}

	fields := strings.Fields(src)
	if len(fields) != 5 {
		return nil, &FormatError{
			Expr:   expr,
			Reason: "expected 5 fields (minute hour day-of-month month day-of-week), got " + strconv.Itoa(len(fields)),
		}
	}

	s := &Schedule{expr: strings.TrimSpace(expr), loc: loc}
	for i, tok := range fields {
		set, err := parseField(expr, Field(i), tok)
		if err != nil {
			return nil, err
		}
		s.sets[i] = set
	}
	if !s.dayReachable() {
		return nil, &FormatError{
			Expr:   expr,
			Field:  DayOfMonth,
			Token:  fields[DayOfMonth],
			Reason: "day-of-month never occurs in the selected months",
		}
	}
	return s, nil
}

// MustParse is like Parse but panics on error. Intended for static tables.
func MustParse(expr string) *Schedule {
	s, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schedule) String() string { return s.expr }

// Location returns the pinned location, or nil when Next follows its argument.
func (s *Schedule) Location() *time.Location { return s.loc }

// Values returns the sorted members of field f.
func (s *Schedule) Values(f Field) []int {
	b := fieldBounds[f]
	out := make([]int, 0, b.max-b.min+1)
	for v := b.min; v <= b.max; v++ {
		if s.has(f, v) {
			out = append(out, v)
		}
	}
	return out
}

func (s *Schedule) has(f Field, v int) bool {
	return s.sets[f]&(1<<uint(v)) != 0
}

// Matches reports whether t (at minute granularity) satisfies every field.
func (s *Schedule) Matches(t time.Time) bool {
	if s.loc != nil {
		t = t.In(s.loc)
	}
	return s.has(Month, int(t.Month())) &&
		s.has(DayOfMonth, t.Day()) &&
		s.has(DayOfWeek, int(t.Weekday())) &&
		s.has(Hour, t.Hour()) &&
		s.has(Minute, t.Minute())
}

// Next returns the earliest minute strictly after from that matches the
// schedule, or the zero time if none exists within the search horizon.
func (s *Schedule) Next(from time.Time) time.Time {
	loc := s.loc
	if loc == nil {
		loc = from.Location()
	}
	t := from.In(loc).Truncate(time.Minute).Add(time.Minute)
	limit := t.Year() + searchYears

	for t.Year() <= limit {
		if !s.has(Month, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !s.has(DayOfMonth, t.Day()) || !s.has(DayOfWeek, int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !s.has(Hour, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			continue
		}
		if !s.has(Minute, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

// dayReachable rejects combinations like "30 2" that no calendar contains.
func (s *Schedule) dayReachable() bool {
	for m := 1; m <= 12; m++ {
		if !s.has(Month, m) {
			continue
		}
		last := daysIn(time.Month(m))
		for d := 1; d <= last; d++ {
			if s.has(DayOfMonth, d) {
				return true
			}
		}
	}
	return false
}

// daysIn counts February as 29 days so leap-day schedules stay valid.
func daysIn(m time.Month) int {
	return time.Date(2024, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func parseField(expr string, f Field, tok string) (uint64, error) {
	b := fieldBounds[f]
	fail := func(part, reason string) error {
		return &FormatError{Expr: expr, Field: f, Token: part, Reason: reason}
	}

	if tok == "*" {
		return span(b.min, b.max, 1), nil
	}

	var set uint64
	for _, part := range strings.Split(tok, ",") {
		if part == "" {
			return 0, fail(tok, "empty list element")
		}

		switch {
		case strings.Contains(part, "/"):
			pieces := strings.Split(part, "/")
			if len(pieces) != 2 {
				return 0, fail(part, "malformed step")
			}
			step, err := strconv.Atoi(pieces[1])
			if err != nil || step <= 0 {
				return 0, fail(part, "step must be a positive integer")
			}
			lo, hi := b.min, b.max
			switch {
			case pieces[0] == "*":
			case strings.Contains(pieces[0], "-"):
				lo, hi, err = parseRange(pieces[0], b)
				if err != nil {
					return 0, fail(part, err.Error())
				}
			default:
				lo, err = parseValue(pieces[0], b)
				if err != nil {
					return 0, fail(part, err.Error())
				}
			}
			set |= span(lo, hi, step)

		case strings.Contains(part, "-"):
			lo, hi, err := parseRange(part, b)
			if err != nil {
				return 0, fail(part, err.Error())
			}
			set |= span(lo, hi, 1)

		default:
			v, err := parseValue(part, b)
			if err != nil {
				return 0, fail(part, err.Error())
			}
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

type reason string

func (r reason) Error() string { return string(r) }

func parseValue(s string, b bounds) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, reason("not a number")
	}
	if v < b.min || v > b.max {
		return 0, reason("value out of range " + strconv.Itoa(b.min) + "-" + strconv.Itoa(b.max))
	}
	return v, nil
}

func parseRange(s string, b bounds) (int, int, error) {
	ends := strings.Split(s, "-")
	if len(ends) != 2 {
		return 0, 0, reason("malformed range")
	}
	lo, err1 := strconv.Atoi(ends[0])
	hi, err2 := strconv.Atoi(ends[1])
	if err1 != nil || err2 != nil {
		return 0, 0, reason("range bounds must be numbers")
	}
	if lo < b.min || hi > b.max {
		return 0, 0, reason("range out of bounds " + strconv.Itoa(b.min) + "-" + strconv.Itoa(b.max))
	}
	if lo > hi {
		return 0, 0, reason("range start exceeds end")
	}
	return lo, hi, nil
}

func span(lo, hi, step int) uint64 {
	var set uint64
	for v := lo; v <= hi; v += step {
		set |= 1 << uint(v)
	}
	return set
}
