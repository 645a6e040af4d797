// Package timestamp turns the loosely typed time tokens sent by POS clients into instants
// and renders instants in the store's canonical format.
package timestamp

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var ErrInvalidTimestamp = errors.New("invalid timestamp")

// MillisecondThreshold is the largest value still read as Unix seconds.
const MillisecondThreshold int64 = 9_999_999_999

const (
	Layout     = "2006-01-02T15:04:05-07:00"
	DateLayout = "2006-01-02"
)

var calendarLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	DateLayout,
}

type Normalizer struct {
	loc     *time.Location
	natural *when.Parser
	now     func() time.Time
}

func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Normalizer{loc: loc, natural: w, now: time.Now}
}

// LoadLocation resolves an IANA zone name; empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("store timezone %q: %w", name, err)
	}
	return loc, nil
}

func (n *Normalizer) Location() *time.Location { return n.loc }

// Normalize converts a token into an instant. present is false when the token is
// nil or blank. Numbers above MillisecondThreshold are milliseconds (truncated to whole
// seconds); any other number is Unix seconds. Strings that are not numeric are parsed as
// calendar dates in the store timezone, then as English relative expressions.
func (n *Normalizer) Normalize(token any) (time.Time, bool, error) {
	switch v := token.(type) {
	case nil:
		return time.Time{}, false, nil
	case int:
		return fromEpoch(int64(v)), true, nil
	case int64:
		return fromEpoch(v), true, nil
	case float64:
		if !inInt64Range(v) {
			return time.Time{}, false, fmt.Errorf("%w: %v", ErrInvalidTimestamp, v)
		}
		return fromEpoch(int64(v)), true, nil
	case json.Number:
		return n.NormalizeString(v.String())
	case string:
		return n.NormalizeString(v)
	case *string:
		if v == nil {
			return time.Time{}, false, nil
		}
		return n.NormalizeString(*v)
	default:
		return time.Time{}, false, fmt.Errorf("%w: unsupported type %T", ErrInvalidTimestamp, token)
	}
}

func (n *Normalizer) NormalizeString(raw string) (time.Time, bool, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false, nil
	}
	if isNumeric(s) {
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpoch(secs), true, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || !inInt64Range(f) {
			return time.Time{}, false, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
		}
		return fromEpoch(int64(f)), true, nil
	}
	for _, layout := range calendarLayouts {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t, true, nil
		}
	}
	if t, ok := n.parseNatural(s); ok {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

// inInt64Range reports whether f converts to int64 without overflow.
func inInt64Range(f float64) bool {
	return !math.IsNaN(f) && f >= math.MinInt64 && f < math.MaxInt64
}

// parseNatural accepts expressions like "yesterday" or "3 days ago" only when the
// whole token is understood.
func (n *Normalizer) parseNatural(s string) (time.Time, bool) {
	base := n.now().In(n.loc)
	res, err := n.natural.Parse(s, base)
	if err != nil || res == nil {
		return time.Time{}, false
	}
	if strings.TrimSpace(res.Text) != s {
		return time.Time{}, false
	}
	return res.Time, true
}

// Format renders t at second precision with an explicit offset in the store timezone.
func (n *Normalizer) Format(t time.Time) string {
	return t.In(n.loc).Format(Layout)
}

// FormatDate renders the calendar date of t in the store timezone.
func (n *Normalizer) FormatDate(t time.Time) string {
	return t.In(n.loc).Format(DateLayout)
}

func fromEpoch(v int64) time.Time {
	if v > MillisecondThreshold {
		v /= 1000
	}
	return time.Unix(v, 0).UTC()
}

func isNumeric(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
		case (r == '-' || r == '+') && i == 0:
		default:
			return false
		}
	}
	return digits > 0 && strings.Count(s, ".") <= 1
}
