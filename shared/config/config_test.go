package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseCSV(t *testing.T) {
	got := parseCSV("a, b, ,c,,")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestParseAnyCSV(t *testing.T) {
	raw := []any{"x", " ", "y"}
	got := parseAnyCSV(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0] != "x" || got[1] != "y" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func hasProblem(problems []Problem, field string) bool {
	for _, p := range problems {
		if p.Field == field {
			return true
		}
	}
	return false
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "dev")
	cfg, problems := Load("capacity-api", 8080)
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %#v", problems)
	}
	if cfg.ServiceName != "capacity-api" || cfg.HTTPPort != 8080 {
		t.Fatalf("unexpected service defaults: %+v", cfg)
	}
	if cfg.CapacityWeekPolicy != "overlap" || cfg.CapacityStandardWeeklyHours != 40 || cfg.CapacityMaxSuggestions != 3 {
		t.Fatalf("unexpected capacity defaults: %+v", cfg)
	}
	if cfg.RequestTimeout.Milliseconds() != 30000 {
		t.Fatalf("expected 30s request timeout, got %s", cfg.RequestTimeout)
	}
}

func TestLoadMissingEnv(t *testing.T) {
	t.Setenv("ENV", "")
	cfg, problems := Load("svc", 8080)
	if !hasProblem(problems, "ENV") {
		t.Fatalf("expected ENV problem, got %#v", problems)
	}
	if cfg.Env != "dev" {
		t.Fatalf("expected dev fallback, got %q", cfg.Env)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("HTTP_PORT", "99999")
	t.Setenv("DB_MAX_CONNS", "many")
	t.Setenv("CAPACITY_WEEK_POLICY", "split")
	t.Setenv("CAPACITY_STANDARD_WEEKLY_HOURS", "-1")
	cfg, problems := Load("svc", 8080)
	for _, field := range []string{"HTTP_PORT", "DB_MAX_CONNS", "CAPACITY_WEEK_POLICY", "CAPACITY_STANDARD_WEEKLY_HOURS"} {
		if !hasProblem(problems, field) {
			t.Fatalf("expected %s problem, got %#v", field, problems)
		}
	}
	if cfg.HTTPPort != 8080 || cfg.DBMaxConns != 10 || cfg.CapacityWeekPolicy != "overlap" || cfg.CapacityStandardWeeklyHours != 40 {
		t.Fatalf("expected fallbacks, got %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("CAPACITY_WEEK_POLICY", "Prorate")
	t.Setenv("CAPACITY_SWEEP_DEPARTMENTS", "engineering, design")
	t.Setenv("OIDC_ISSUER", "https://id.example.com/")
	cfg, problems := Load("svc", 8080)
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %#v", problems)
	}
	if cfg.CapacityWeekPolicy != "prorate" {
		t.Fatalf("expected prorate, got %q", cfg.CapacityWeekPolicy)
	}
	if len(cfg.CapacitySweepDepartments) != 2 || cfg.CapacitySweepDepartments[1] != "design" {
		t.Fatalf("unexpected departments: %#v", cfg.CapacitySweepDepartments)
	}
	if cfg.OIDCJWKSURL != "https://id.example.com/.well-known/jwks.json" {
		t.Fatalf("unexpected jwks url: %q", cfg.OIDCJWKSURL)
	}
}

func TestLoadAuthRolesAndCORS(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("AUTH_REQUIRED_ROLES", "planner, admin")
	t.Setenv("OIDC_JWKS_URL", "https://id.example.com/keys")
	t.Setenv("CORS_ALLOWED_HEADERS", "Authorization,Content-Type")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "yes")
	cfg, problems := Load("svc", 8080)
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %#v", problems)
	}
	if len(cfg.AuthRequiredRoles) != 2 || cfg.AuthRequiredRoles[0] != "planner" {
		t.Fatalf("unexpected roles: %#v", cfg.AuthRequiredRoles)
	}
	if len(cfg.CORSAllowedHeaders) != 2 || !cfg.CORSAllowCredentials || cfg.CORSMaxAgeSec != 600 {
		t.Fatalf("unexpected cors settings: %+v", cfg)
	}
}

func TestLoadRolesWithoutVerifier(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("AUTH_REQUIRED_ROLES", "planner")
	t.Setenv("CORS_MAX_AGE_SECONDS", "-5")
	cfg, problems := Load("svc", 8080)
	for _, field := range []string{"AUTH_REQUIRED_ROLES", "CORS_MAX_AGE_SECONDS"} {
		if !hasProblem(problems, field) {
			t.Fatalf("expected %s problem, got %#v", field, problems)
		}
	}
	if cfg.CORSMaxAgeSec != 600 {
		t.Fatalf("expected max age fallback, got %d", cfg.CORSMaxAgeSec)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capacity.yaml")
	body := "CAPACITY_MAX_SUGGESTIONS: 5\nCAPACITY_SWEEP_DEPARTMENTS:\n  - engineering\n  - qa\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ENV", "dev")
	t.Setenv("CONFIG_PATH", path)
	cfg, problems := Load("svc", 8080)
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %#v", problems)
	}
	if cfg.CapacityMaxSuggestions != 5 {
		t.Fatalf("expected 5 suggestions, got %d", cfg.CapacityMaxSuggestions)
	}
	if len(cfg.CapacitySweepDepartments) != 2 || cfg.CapacitySweepDepartments[0] != "engineering" {
		t.Fatalf("unexpected departments: %#v", cfg.CapacitySweepDepartments)
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	_, problems := Load("svc", 8080)
	if !hasProblem(problems, "CONFIG_PATH") {
		t.Fatalf("expected CONFIG_PATH problem, got %#v", problems)
	}
}
