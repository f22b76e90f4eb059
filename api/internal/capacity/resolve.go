package capacity

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"resource-planning-system/api/internal/models"
	"resource-planning-system/shared/workflow"
)

var ErrNotOverallocated = errors.New("resource is not overallocated")

const DefaultMaxSuggestions = 3

// hoursEpsilon absorbs float noise when comparing hour totals.
const hoursEpsilon = 1e-9

type SuggestionKind string

const (
	SuggestionReduce   SuggestionKind = "reduce"
	SuggestionReassign SuggestionKind = "reassign"
)

type ResolutionSuggestion struct {
	Kind             SuggestionKind `json:"kind"`
	SourceResourceID uuid.UUID      `json:"sourceResourceId"`
	TargetResourceID *uuid.UUID     `json:"targetResourceId,omitempty"`
	AllocationID     uuid.UUID      `json:"allocationId"`
	ProjectID        uuid.UUID      `json:"projectId"`
	DeltaHours       float64        `json:"deltaHours"`
	// Coverage is the share of the deficit this suggestion removes, 0..1.
	Coverage  float64 `json:"coverage"`
	Rationale string  `json:"rationale"`
}

// Delta turns the suggestion into a simulation delta so a caller can preview
// it before committing.
func (s ResolutionSuggestion) Delta() AllocationDelta {
	if s.Kind == SuggestionReassign && s.TargetResourceID != nil {
		return AllocationDelta{
			Kind:             DeltaReassign,
			AllocationID:     s.AllocationID,
			TargetResourceID: *s.TargetResourceID,
			DeltaHours:       s.DeltaHours,
		}
	}
	return AllocationDelta{
		Kind:         DeltaAdjust,
		AllocationID: s.AllocationID,
		DeltaHours:   -s.DeltaHours,
	}
}

type ResolveOptions struct {
	Period         Period
	Policy         WeekPolicy
	MaxSuggestions int
}

type candidate struct {
	alloc   models.Allocation
	project models.Project
	hours   float64
}

type rankedSuggestion struct {
	ResolutionSuggestion
	priority int
	spare    float64
	roleFit  bool
}

// Suggest proposes at most MaxSuggestions ways to bring an overallocated
// resource back within capacity. Reductions start from the lowest priority
// project and stop once the deficit is covered; reassignments go to peers
// in the same department (or role) whose spare capacity can absorb the whole
// deficit. A resource with no remedy gets an empty list, not an error.
func Suggest(target UtilizationResult, allocations []models.Allocation, peers []UtilizationResult, projects map[uuid.UUID]models.Project, opts ResolveOptions) ([]ResolutionSuggestion, error) {
	deficit := target.AllocatedHours - target.EffectiveCapacity
	if target.Degenerate {
		deficit = target.AllocatedHours
	}
	if deficit <= hoursEpsilon || Classify(target) != CategoryCritical {
		return []ResolutionSuggestion{}, ErrNotOverallocated
	}
	maxN := opts.MaxSuggestions
	if maxN <= 0 {
		maxN = DefaultMaxSuggestions
	}

	cands := adjustableAllocations(target.ResourceID, allocations, projects, opts)

	var ranked []rankedSuggestion
	remaining := deficit
	for _, c := range cands {
		if remaining <= hoursEpsilon {
			break
		}
		delta := minFloat(remaining, c.hours)
		remaining -= delta
		ranked = append(ranked, rankedSuggestion{
			ResolutionSuggestion: ResolutionSuggestion{
				Kind:             SuggestionReduce,
				SourceResourceID: target.ResourceID,
				AllocationID:     c.alloc.ID,
				ProjectID:        c.alloc.ProjectID,
				DeltaHours:       delta,
				Coverage:         delta / deficit,
				Rationale: fmt.Sprintf("Reduce %s (%s priority) by %.1fh, covering %.1fh of the %.1fh overage",
					projectLabel(c.project), priorityLabel(c.project), delta, delta, deficit),
			},
			priority: c.project.Priority.Rank(),
		})
	}

	for _, peer := range eligiblePeers(target, peers, deficit) {
		peerID := peer.ResourceID
		spare := peer.Spare()
		for _, c := range cands {
			delta := minFloat(minFloat(deficit, c.hours), spare)
			if delta <= hoursEpsilon {
				continue
			}
			ranked = append(ranked, rankedSuggestion{
				ResolutionSuggestion: ResolutionSuggestion{
					Kind:             SuggestionReassign,
					SourceResourceID: target.ResourceID,
					TargetResourceID: &peerID,
					AllocationID:     c.alloc.ID,
					ProjectID:        c.alloc.ProjectID,
					DeltaHours:       delta,
					Coverage:         delta / deficit,
					Rationale: fmt.Sprintf("Move %.1fh of %s to %s, who has %.1fh spare (%d%% utilized)",
						delta, projectLabel(c.project), peer.ResourceName, spare, peer.UtilizationPct),
				},
				priority: c.project.Priority.Rank(),
				spare:    spare,
				roleFit:  target.Role != "" && strings.EqualFold(target.Role, peer.Role),
			})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Coverage != b.Coverage {
			return a.Coverage > b.Coverage
		}
		if a.Kind != b.Kind {
			return a.Kind == SuggestionReassign
		}
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.roleFit != b.roleFit {
			return a.roleFit
		}
		if a.spare != b.spare {
			return a.spare > b.spare
		}
		if a.AllocationID != b.AllocationID {
			return a.AllocationID.String() < b.AllocationID.String()
		}
		return targetKey(a.TargetResourceID) < targetKey(b.TargetResourceID)
	})

	if len(ranked) > maxN {
		ranked = ranked[:maxN]
	}
	out := make([]ResolutionSuggestion, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.ResolutionSuggestion)
	}
	return out, nil
}

// adjustableAllocations returns the resource's non-completed allocations with
// hours in the period, lowest project priority first, then largest first.
func adjustableAllocations(resourceID uuid.UUID, allocations []models.Allocation, projects map[uuid.UUID]models.Project, opts ResolveOptions) []candidate {
	var out []candidate
	for _, a := range allocations {
		if a.ResourceID != resourceID || !workflow.Adjustable(string(a.Status)) {
			continue
		}
		hours, err := AllocationHours(a, opts.Period, opts.Policy)
		if err != nil || hours <= hoursEpsilon {
			continue
		}
		p, ok := projects[a.ProjectID]
		if !ok {
			p = models.Project{ID: a.ProjectID, Priority: models.ProjectPriorityMedium}
		}
		out = append(out, candidate{alloc: a, project: p, hours: hours})
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].project.Priority.Rank(), out[j].project.Priority.Rank()
		if pi != pj {
			return pi < pj
		}
		if out[i].hours != out[j].hours {
			return out[i].hours > out[j].hours
		}
		return out[i].alloc.ID.String() < out[j].alloc.ID.String()
	})
	return out
}

func eligiblePeers(target UtilizationResult, peers []UtilizationResult, deficit float64) []UtilizationResult {
	var out []UtilizationResult
	for _, p := range peers {
		if p.ResourceID == target.ResourceID || p.Degenerate {
			continue
		}
		sameDept := target.Department != "" && strings.EqualFold(p.Department, target.Department)
		sameRole := target.Role != "" && strings.EqualFold(p.Role, target.Role)
		if !sameDept && !sameRole {
			continue
		}
		if p.Spare()+hoursEpsilon < deficit {
			continue
		}
		out = append(out, p)
	}
	return out
}

func projectLabel(p models.Project) string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return "project " + p.ID.String()
}

func priorityLabel(p models.Project) string {
	if p.Priority == "" {
		return string(models.ProjectPriorityMedium)
	}
	return strings.ToLower(string(p.Priority))
}

func targetKey(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func minFloat(a float64, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
