package capacity

import (
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryCritical      Category = "critical"
	CategoryNearCapacity  Category = "near_capacity"
	CategoryUnderutilized Category = "underutilized"
	CategoryUnassigned    Category = "unassigned"
	// CategoryHealthy is the 70-84% band. It never raises an alert.
	CategoryHealthy Category = "healthy"
)

// AlertCategories lists the alerting categories in report order.
func AlertCategories() []Category {
	return []Category{CategoryCritical, CategoryNearCapacity, CategoryUnderutilized, CategoryUnassigned}
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeverityNone     Severity = "none"
)

func (c Category) Severity() Severity {
	switch c {
	case CategoryCritical:
		return SeverityCritical
	case CategoryNearCapacity:
		return SeverityWarning
	case CategoryUnderutilized, CategoryUnassigned:
		return SeverityInfo
	default:
		return SeverityNone
	}
}

func (c Category) IsAlert() bool {
	return c.Severity() != SeverityNone
}

// Threshold bounds are inclusive utilization percentages; nil is unbounded.
type Threshold struct {
	MinPct *int   `json:"minPct,omitempty"`
	MaxPct *int   `json:"maxPct,omitempty"`
	Label  string `json:"label"`
}

func (c Category) Threshold() Threshold {
	switch c {
	case CategoryCritical:
		return Threshold{MinPct: intPtr(101), Label: "> 100%"}
	case CategoryNearCapacity:
		return Threshold{MinPct: intPtr(85), MaxPct: intPtr(100), Label: "85% - 100%"}
	case CategoryUnderutilized:
		return Threshold{MinPct: intPtr(1), MaxPct: intPtr(69), Label: "> 0% and < 70%"}
	case CategoryUnassigned:
		return Threshold{MinPct: intPtr(0), MaxPct: intPtr(0), Label: "0%"}
	default:
		return Threshold{MinPct: intPtr(70), MaxPct: intPtr(84), Label: "70% - 84%"}
	}
}

func intPtr(v int) *int { return &v }

// Classify places one result in exactly one category. A degenerate result
// with hours still booked is critical: nothing can absorb them.
func Classify(r UtilizationResult) Category {
	if r.Degenerate {
		if r.AllocatedHours > 0 {
			return CategoryCritical
		}
		return CategoryUnassigned
	}
	switch u := r.UtilizationPct; {
	case u > 100:
		return CategoryCritical
	case u >= 85:
		return CategoryNearCapacity
	case u >= 70:
		return CategoryHealthy
	case u > 0:
		return CategoryUnderutilized
	default:
		return CategoryUnassigned
	}
}

type AlertCategory struct {
	Type      Category            `json:"type"`
	Severity  Severity            `json:"severity"`
	Threshold Threshold           `json:"threshold"`
	Resources []UtilizationResult `json:"resources"`
	Count     int                 `json:"count"`
}

type Summary struct {
	TotalAlerts     int `json:"totalAlerts"`
	CriticalCount   int `json:"criticalCount"`
	WarningCount    int `json:"warningCount"`
	InfoCount       int `json:"infoCount"`
	UnassignedCount int `json:"unassignedCount"`
}

// Exclusion is a resource left out of an evaluation and why.
type Exclusion struct {
	ResourceID   uuid.UUID `json:"resourceId"`
	ResourceName string    `json:"resourceName,omitempty"`
	Reason       string    `json:"reason"`
}

type Categorization struct {
	Categories []AlertCategory     `json:"categories"`
	Summary    Summary             `json:"summary"`
	Healthy    []UtilizationResult `json:"healthy"`
	Excluded   []Exclusion         `json:"excluded,omitempty"`
	byResource map[uuid.UUID]Category
}

// CategoryOf returns the bucket a resource landed in.
func (c Categorization) CategoryOf(resourceID uuid.UUID) (Category, bool) {
	cat, ok := c.byResource[resourceID]
	return cat, ok
}

func (c Categorization) Bucket(cat Category) AlertCategory {
	for _, ac := range c.Categories {
		if ac.Type == cat {
			return ac
		}
	}
	return AlertCategory{Type: cat, Severity: cat.Severity(), Threshold: cat.Threshold(), Resources: []UtilizationResult{}}
}

// Categorize buckets results in a single pass. Every alert category is present
// in the output, empty or not. Results carrying non-finite numbers are
// excluded and reported instead of failing the batch; a resource seen twice
// keeps its first result.
func Categorize(results []UtilizationResult) Categorization {
	buckets := make(map[Category][]UtilizationResult, 5)
	out := Categorization{byResource: make(map[uuid.UUID]Category, len(results))}

	for _, r := range results {
		if _, dup := out.byResource[r.ResourceID]; dup {
			out.Excluded = append(out.Excluded, Exclusion{ResourceID: r.ResourceID, ResourceName: r.ResourceName, Reason: "duplicate result"})
			continue
		}
		if err := checkResult(r); err != nil {
			out.Excluded = append(out.Excluded, Exclusion{ResourceID: r.ResourceID, ResourceName: r.ResourceName, Reason: err.Error()})
			continue
		}
		cat := Classify(r)
		out.byResource[r.ResourceID] = cat
		buckets[cat] = append(buckets[cat], r)
	}

	out.Categories = make([]AlertCategory, 0, 4)
	for _, cat := range AlertCategories() {
		rs := buckets[cat]
		if rs == nil {
			rs = []UtilizationResult{}
		}
		sortBucket(cat, rs)
		out.Categories = append(out.Categories, AlertCategory{
			Type:      cat,
			Severity:  cat.Severity(),
			Threshold: cat.Threshold(),
			Resources: rs,
			Count:     len(rs),
		})

		switch cat.Severity() {
		case SeverityCritical:
			out.Summary.CriticalCount += len(rs)
		case SeverityWarning:
			out.Summary.WarningCount += len(rs)
		case SeverityInfo:
			out.Summary.InfoCount += len(rs)
		}
		if cat == CategoryUnassigned {
			out.Summary.UnassignedCount = len(rs)
		}
		out.Summary.TotalAlerts += len(rs)
	}

	out.Healthy = buckets[CategoryHealthy]
	if out.Healthy == nil {
		out.Healthy = []UtilizationResult{}
	}
	sortBucket(CategoryHealthy, out.Healthy)
	return out
}

func checkResult(r UtilizationResult) error {
	switch {
	case !finite(r.AllocatedHours):
		return errors.New("non-finite allocated hours")
	case !finite(r.EffectiveCapacity):
		return errors.New("non-finite effective capacity")
	case !finite(r.AvailableHours):
		return errors.New("non-finite available hours")
	}
	return nil
}

func sortBucket(cat Category, rs []UtilizationResult) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		switch cat {
		case CategoryCritical, CategoryNearCapacity:
			// Hours booked against no capacity outrank any percentage.
			if a.Degenerate != b.Degenerate {
				return a.Degenerate
			}
			if a.UtilizationPct != b.UtilizationPct {
				return a.UtilizationPct > b.UtilizationPct
			}
			if a.AllocatedHours != b.AllocatedHours {
				return a.AllocatedHours > b.AllocatedHours
			}
		case CategoryUnderutilized:
			if a.UtilizationPct != b.UtilizationPct {
				return a.UtilizationPct < b.UtilizationPct
			}
			if a.AvailableHours != b.AvailableHours {
				return a.AvailableHours > b.AvailableHours
			}
		}
		if an, bn := strings.ToLower(a.ResourceName), strings.ToLower(b.ResourceName); an != bn {
			return an < bn
		}
		return a.ResourceID.String() < b.ResourceID.String()
	})
}
