package planner

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"resource-planning-system/api/internal/capacity"
)

const dateLayout = "2006-01-02"

// Query carries the raw filters shared by every capacity read.
type Query struct {
	Department string `json:"department,omitempty"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
}

// Metadata describes the scope a response was computed for. Filters that
// could not be honoured are listed in Fallbacks rather than failing the call.
type Metadata struct {
	Department  string    `json:"department"`
	StartDate   string    `json:"startDate"`
	EndDate     string    `json:"endDate"`
	WeekPolicy  string    `json:"weekPolicy"`
	Fallbacks   []string  `json:"fallbacks,omitempty"`
	Anomalies   int       `json:"anomalies"`
	Excluded    int       `json:"excluded"`
	Cached      bool      `json:"cached"`
	GeneratedAt time.Time `json:"generatedAt"`
}

type scope struct {
	department string
	period     capacity.Period
	meta       Metadata
}

// resolveScope normalizes q. Missing dates select the current month, a
// single bound completes to its calendar month, unreadable or reversed
// ranges and unknown departments fall back to the defaults.
func (s *Service) resolveScope(ctx context.Context, q Query) scope {
	now := s.now()
	period, fallbacks := resolvePeriod(q.StartDate, q.EndDate, now)

	department := strings.TrimSpace(q.Department)
	if department != "" {
		known, err := s.source.Departments(ctx)
		switch {
		case err != nil:
			s.logger.Warn(ctx, "departments_lookup_failed", "could not verify department", slog.String("department", department), slog.String("error", err.Error()))
		default:
			if match, ok := matchDepartment(known, department); ok {
				department = match
			} else {
				fallbacks = append(fallbacks, "unknown department "+quote(department)+", using all departments")
				department = ""
			}
		}
	}

	return scope{
		department: department,
		period:     period,
		meta: Metadata{
			Department:  displayDepartment(department),
			StartDate:   period.Start.Format(dateLayout),
			EndDate:     period.End.Format(dateLayout),
			WeekPolicy:  string(s.opts.Policy),
			Fallbacks:   fallbacks,
			GeneratedAt: now.UTC(),
		},
	}
}

func resolvePeriod(startRaw string, endRaw string, now time.Time) (capacity.Period, []string) {
	var fallbacks []string
	current := capacity.MonthPeriod(now)

	start, startOK, startGiven := parseDate(startRaw)
	end, endOK, endGiven := parseDate(endRaw)
	if startGiven && !startOK {
		fallbacks = append(fallbacks, "invalid startDate "+quote(startRaw)+" ignored")
	}
	if endGiven && !endOK {
		fallbacks = append(fallbacks, "invalid endDate "+quote(endRaw)+" ignored")
	}

	switch {
	case startOK && endOK:
		p, err := capacity.NewPeriod(start, end)
		if err != nil {
			return current, append(fallbacks, "startDate after endDate, using current month")
		}
		return p, fallbacks
	case startOK:
		m := capacity.MonthPeriod(start)
		p, _ := capacity.NewPeriod(start, m.End)
		return p, append(fallbacks, "endDate completed to "+m.End.Format(dateLayout))
	case endOK:
		m := capacity.MonthPeriod(end)
		p, _ := capacity.NewPeriod(m.Start, end)
		return p, append(fallbacks, "startDate completed to "+m.Start.Format(dateLayout))
	default:
		if startGiven || endGiven {
			fallbacks = append(fallbacks, "using current month")
		}
		return current, fallbacks
	}
}

// parseDate reports the parsed day, whether it parsed, and whether anything
// was supplied at all.
func parseDate(raw string) (time.Time, bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, false
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, true, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return capacity.Day(t), true, true
	}
	return time.Time{}, false, true
}

func matchDepartment(known []string, want string) (string, bool) {
	for _, k := range known {
		if strings.EqualFold(k, want) {
			return k, true
		}
	}
	return "", false
}

func displayDepartment(d string) string {
	if d == "" {
		return "all"
	}
	return d
}

func quote(s string) string {
	return `"` + s + `"`
}
