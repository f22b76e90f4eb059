package capacity

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"resource-planning-system/api/internal/models"
)

var ErrInvalidPeriod = errors.New("invalid period")

const dateLayout = "2006-01-02"

// Period is an inclusive range of calendar days in UTC.
type Period struct {
	Start time.Time
	End   time.Time
}

func NewPeriod(start time.Time, end time.Time) (Period, error) {
	if start.IsZero() || end.IsZero() {
		return Period{}, fmt.Errorf("%w: missing bound", ErrInvalidPeriod)
	}
	p := Period{Start: Day(start), End: Day(end)}
	if p.End.Before(p.Start) {
		return Period{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidPeriod, p.End.Format(dateLayout), p.Start.Format(dateLayout))
	}
	return p, nil
}

func MonthPeriod(t time.Time) Period {
	y, m, _ := t.UTC().Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, -1)}
}

func WeekPeriod(k models.WeekKey) Period {
	return Period{Start: k.Start(), End: k.End()}
}

// WeekRange covers from the Monday of first through the Sunday of last.
func WeekRange(first models.WeekKey, last models.WeekKey) Period {
	return Period{Start: first.Start(), End: last.End()}
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (p Period) Days() int {
	return daysBetween(p.Start, p.End)
}

// Weeks is fractional: a 10 day period is 10/7 weeks.
func (p Period) Weeks() float64 {
	return float64(p.Days()) / 7
}

func (p Period) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p Period) Overlaps(start time.Time, end time.Time) bool {
	return p.OverlapDays(start, end) > 0
}

// OverlapDays counts the calendar days shared by p and [start, end].
func (p Period) OverlapDays(start time.Time, end time.Time) int {
	s, e := Day(start), Day(end)
	if s.Before(p.Start) {
		s = p.Start
	}
	if e.After(p.End) {
		e = p.End
	}
	return daysBetween(s, e)
}

// WeekKeys lists every ISO week touching the period, in order.
func (p Period) WeekKeys() []models.WeekKey {
	var keys []models.WeekKey
	for k := models.WeekOf(p.Start); !k.Start().After(p.End); k = models.WeekOf(k.Start().AddDate(0, 0, 7)) {
		keys = append(keys, k)
	}
	return keys
}

func (p Period) String() string {
	return p.Start.Format(dateLayout) + ".." + p.End.Format(dateLayout)
}

func daysBetween(start time.Time, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(math.Round(end.Sub(start).Hours()/24)) + 1
}

// WeekPolicy decides how much of a week's planned hours count toward a
// period that only partially covers that week.
type WeekPolicy string

const (
	// WeekPolicyOverlap counts the whole week if any day of it is in the period.
	WeekPolicyOverlap WeekPolicy = "overlap"
	// WeekPolicyProrate counts the share of the week's days inside the period.
	WeekPolicyProrate WeekPolicy = "prorate"
)

func ParseWeekPolicy(raw string) (WeekPolicy, bool) {
	switch WeekPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case WeekPolicyOverlap, "":
		return WeekPolicyOverlap, true
	case WeekPolicyProrate:
		return WeekPolicyProrate, true
	default:
		return WeekPolicyOverlap, false
	}
}

// Window is the span that both booked hours and capacity are measured over.
// Under overlap it widens p to whole ISO weeks, since every touched week
// counts in full; under prorate it is p itself.
func (w WeekPolicy) Window(p Period) Period {
	if w == WeekPolicyProrate {
		return p
	}
	keys := p.WeekKeys()
	if len(keys) == 0 {
		return p
	}
	return WeekRange(keys[0], keys[len(keys)-1])
}

// weekShare is the fraction of week k attributed to p under the policy.
func (w WeekPolicy) weekShare(k models.WeekKey, p Period) float64 {
	days := p.OverlapDays(k.Start(), k.End())
	if days == 0 {
		return 0
	}
	if w == WeekPolicyProrate {
		return float64(days) / 7
	}
	return 1
}
