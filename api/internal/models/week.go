package models

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidWeekKey   = errors.New("invalid week key")
	ErrAmbiguousWeekKey = errors.New("ambiguous week key")
)

var (
	yearWeekPattern = regexp.MustCompile(`^(\d{4})[-/ ]?[Ww](\d{1,2})$`)
	yearNumPattern  = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})$`)
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	bareWeekPattern = regexp.MustCompile(`^[Ww]?(\d{1,2})$`)
)

// WeekKey identifies an ISO-8601 week.
type WeekKey struct {
	Year int
	Week int
}

func WeekOf(t time.Time) WeekKey {
	y, w := t.ISOWeek()
	return WeekKey{Year: y, Week: w}
}

func (k WeekKey) String() string {
	return fmt.Sprintf("%04d-W%02d", k.Year, k.Week)
}

func (k WeekKey) Valid() bool {
	return k.Week >= 1 && k.Week <= WeeksInYear(k.Year)
}

// Start returns the Monday of the week at 00:00 UTC.
func (k WeekKey) Start() time.Time {
	jan4 := time.Date(k.Year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	week1 := jan4.AddDate(0, 0, -offset)
	return week1.AddDate(0, 0, (k.Week-1)*7)
}

// End returns the Sunday of the week at 00:00 UTC.
func (k WeekKey) End() time.Time {
	return k.Start().AddDate(0, 0, 6)
}

func (k WeekKey) Before(other WeekKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Week < other.Week
}

func (k WeekKey) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d-W%d", ErrInvalidWeekKey, k.Year, k.Week)
	}
	return []byte(k.String()), nil
}

func (k *WeekKey) UnmarshalText(text []byte) error {
	parsed, err := ParseWeekKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func WeeksInYear(year int) int {
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}

// ParseWeekKey accepts year-qualified keys ("2025-W29", "2025W29", "2025-29",
// "2025/29") and ISO dates ("2025-07-14", resolved to the containing week).
// Bare week numbers return ErrAmbiguousWeekKey; use ResolveWeekKey for those.
func ParseWeekKey(raw string) (WeekKey, error) {
	s := strings.TrimSpace(raw)
	if m := yearWeekPattern.FindStringSubmatch(s); m != nil {
		return validKey(m[1], m[2], raw)
	}
	if m := yearNumPattern.FindStringSubmatch(s); m != nil {
		return validKey(m[1], m[2], raw)
	}
	if datePattern.MatchString(s) {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return WeekKey{}, fmt.Errorf("%w: %q", ErrInvalidWeekKey, raw)
		}
		return WeekOf(t), nil
	}
	if bareWeekPattern.MatchString(s) {
		return WeekKey{}, fmt.Errorf("%w: %q has no year", ErrAmbiguousWeekKey, raw)
	}
	return WeekKey{}, fmt.Errorf("%w: %q", ErrInvalidWeekKey, raw)
}

// ResolveWeekKey is ParseWeekKey plus bare week numbers ("W29", "29"), which
// are accepted only when exactly one ISO year puts that week inside
// [start, end].
func ResolveWeekKey(raw string, start time.Time, end time.Time) (WeekKey, error) {
	key, err := ParseWeekKey(raw)
	if err == nil || !errors.Is(err, ErrAmbiguousWeekKey) {
		return key, err
	}
	m := bareWeekPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil || start.IsZero() || end.IsZero() || end.Before(start) {
		return WeekKey{}, err
	}
	week, _ := strconv.Atoi(m[1])
	var candidates []WeekKey
	for year := WeekOf(start).Year; year <= WeekOf(end).Year; year++ {
		k := WeekKey{Year: year, Week: week}
		if !k.Valid() {
			continue
		}
		if !k.End().Before(truncateDay(start)) && !k.Start().After(truncateDay(end)) {
			candidates = append(candidates, k)
		}
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return WeekKey{}, fmt.Errorf("%w: week %d outside allocation span", ErrInvalidWeekKey, week)
	default:
		return WeekKey{}, fmt.Errorf("%w: week %d matches %d years", ErrAmbiguousWeekKey, week, len(candidates))
	}
}

func validKey(yearRaw string, weekRaw string, raw string) (WeekKey, error) {
	year, _ := strconv.Atoi(yearRaw)
	week, _ := strconv.Atoi(weekRaw)
	k := WeekKey{Year: year, Week: week}
	if !k.Valid() {
		return WeekKey{}, fmt.Errorf("%w: %q", ErrInvalidWeekKey, raw)
	}
	return k, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeeklyHours is a sparse week -> planned hours map.
type WeeklyHours map[WeekKey]float64

func (w WeeklyHours) Keys() []WeekKey {
	keys := make([]WeekKey, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

func (w WeeklyHours) Total() float64 {
	total := 0.0
	for _, k := range w.Keys() {
		total += w[k]
	}
	return total
}

func (w WeeklyHours) Clone() WeeklyHours {
	if w == nil {
		return nil
	}
	out := make(WeeklyHours, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

type WeekKeyAnomaly struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// NormalizeWeeklyHours converts a producer's raw week map into canonical keys.
// Unusable entries are returned as anomalies instead of being dropped
// silently. Keys that collapse onto the same week are summed.
func NormalizeWeeklyHours(raw map[string]float64, start time.Time, end time.Time) (WeeklyHours, []WeekKeyAnomaly) {
	if len(raw) == 0 {
		return nil, nil
	}
	rawKeys := make([]string, 0, len(raw))
	for k := range raw {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	out := make(WeeklyHours, len(raw))
	var anomalies []WeekKeyAnomaly
	for _, rk := range rawKeys {
		hours := raw[rk]
		if math.IsNaN(hours) || math.IsInf(hours, 0) || hours < 0 {
			anomalies = append(anomalies, WeekKeyAnomaly{Key: rk, Reason: fmt.Sprintf("invalid hours %v", hours)})
			continue
		}
		key, err := ResolveWeekKey(rk, start, end)
		if err != nil {
			anomalies = append(anomalies, WeekKeyAnomaly{Key: rk, Reason: err.Error()})
			continue
		}
		out[key] += hours
	}
	if len(out) == 0 {
		out = nil
	}
	return out, anomalies
}
