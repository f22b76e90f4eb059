package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	alertsKeyPrefix = "capacity:alerts:v1"
	allDepartments  = "*"
)

func generationKey(department string) string {
	if department == "" {
		department = allDepartments
	}
	return alertsKeyPrefix + ":gen:" + strings.ToLower(department)
}

const globalGenerationKey = alertsKeyPrefix + ":gen"

// alertsKey returns "" when caching is off or the generation counters cannot
// be read, which makes the caller skip the cache.
func (s *Service) alertsKey(ctx context.Context, sc scope) string {
	if s.cache == nil || s.cacheTTL <= 0 {
		return ""
	}
	global, err := s.cache.GetInt64(ctx, globalGenerationKey)
	if err != nil {
		s.logger.Warn(ctx, "alerts_cache_read_failed", "alerts cache unavailable", slog.String("error", err.Error()))
		return ""
	}
	dept, err := s.cache.GetInt64(ctx, generationKey(sc.department))
	if err != nil {
		s.logger.Warn(ctx, "alerts_cache_read_failed", "alerts cache unavailable", slog.String("error", err.Error()))
		return ""
	}
	d := sc.department
	if d == "" {
		d = allDepartments
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s:g%d.%d",
		alertsKeyPrefix, strings.ToLower(d),
		sc.meta.StartDate, sc.meta.EndDate, sc.meta.WeekPolicy, global, dept)
}

func (s *Service) storeAlerts(ctx context.Context, key string, resp AlertsResponse) {
	if key == "" {
		return
	}
	// Fallback notes describe the request, not the result; keep them out.
	resp.Metadata.Fallbacks = nil
	if err := s.cache.SetJSON(ctx, key, resp, s.cacheTTL); err != nil {
		s.logger.Warn(ctx, "alerts_cache_write_failed", "alerts cache write failed", slog.String("error", err.Error()))
	}
}

// Invalidate orphans cached alerts for department and for the all-departments
// view. An empty department orphans everything.
func (s *Service) Invalidate(ctx context.Context, department string) error {
	if s.cache == nil {
		return nil
	}
	department = strings.TrimSpace(department)
	keys := []string{globalGenerationKey}
	if department != "" {
		keys = []string{generationKey(department), generationKey("")}
	}
	for _, k := range keys {
		if _, err := s.cache.Incr(ctx, k); err != nil {
			return fmt.Errorf("bump %s: %w", k, err)
		}
	}
	s.logger.Info(ctx, "alerts_cache_invalidated", "alerts cache invalidated", slog.String("department", displayDepartment(department)))
	return nil
}
