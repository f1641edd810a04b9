package config

import (
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.ClinicLocation == nil || cfg.ClinicLocation.String() != "Australia/Sydney" {
		t.Fatalf("ClinicLocation = %v, want Australia/Sydney", cfg.ClinicLocation)
	}
	if !slices.Equal(cfg.PatchFallbackStatuses, []int{404, 405, 501}) {
		t.Fatalf("PatchFallbackStatuses = %v", cfg.PatchFallbackStatuses)
	}
	if cfg.CallStateDSN != "" || cfg.SchedulingBaseURL != "" {
		t.Fatalf("store/backend defaults should be empty: %q %q", cfg.CallStateDSN, cfg.SchedulingBaseURL)
	}
	if cfg.ClassifierEnabled() {
		t.Fatalf("ClassifierEnabled() = true without an API key")
	}
	if cfg.GatherTimeoutSeconds != 5 || cfg.MaxConsecutiveFailures != 3 || !cfg.LogUtterances {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("CLINIC_TIMEZONE", "Australia/Perth")
	t.Setenv("SCHEDULING_PATCH_FALLBACK_STATUSES", " 405, 501 ")
	t.Setenv("CLASSIFIER_API_KEY", "sk-test")
	t.Setenv("CLASSIFIER_MIN_CONFIDENCE", "0.7")
	t.Setenv("APP_CALL_INACTIVITY_TIMEOUT", "2m")
	t.Setenv("APP_LOG_UTTERANCES", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ClinicLocation.String() != "Australia/Perth" {
		t.Fatalf("ClinicLocation = %v, want Australia/Perth", cfg.ClinicLocation)
	}
	if !slices.Equal(cfg.PatchFallbackStatuses, []int{405, 501}) {
		t.Fatalf("PatchFallbackStatuses = %v, want [405 501]", cfg.PatchFallbackStatuses)
	}
	if !cfg.ClassifierEnabled() || cfg.ClassifierMinConfidence != 0.7 {
		t.Fatalf("classifier = enabled %v min %v", cfg.ClassifierEnabled(), cfg.ClassifierMinConfidence)
	}
	if cfg.CallInactivityTimeout != 2*time.Minute || cfg.LogUtterances {
		t.Fatalf("CallInactivityTimeout = %v LogUtterances = %v", cfg.CallInactivityTimeout, cfg.LogUtterances)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		key, value, wantErr string
	}{
		{"APP_SHUTDOWN_TIMEOUT", "soon", "APP_SHUTDOWN_TIMEOUT parse error"},
		{"APP_CALL_INACTIVITY_TIMEOUT", "10s", "at least 30s"},
		{"CLINIC_TIMEZONE", "Mars/Olympus", "CLINIC_TIMEZONE parse error"},
		{"SCHEDULING_PATCH_FALLBACK_STATUSES", "405,abc", "SCHEDULING_PATCH_FALLBACK_STATUSES parse error"},
		{"SCHEDULING_PATCH_FALLBACK_STATUSES", "99", "not an HTTP status"},
		{"CLASSIFIER_MIN_CONFIDENCE", "1.5", "between 0 and 1"},
		{"GATHER_TIMEOUT_SECONDS", "0", "between 1 and 60"},
		{"SCHEDULING_TIMEOUT", "30s", "shorter than APP_TURN_MUTATION_TIMEOUT"},
		{"APP_LOG_UTTERANCES", "maybe", "expected bool"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Load() error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_CALL_INACTIVITY_TIMEOUT",
		"APP_TURN_MUTATION_TIMEOUT",
		"APP_LOG_UTTERANCES",
		"CALL_STATE_DSN",
		"CLINIC_NAME",
		"CLINIC_TIMEZONE",
		"CLINIC_REGION",
		"DEFAULT_TENANT_ID",
		"HANDOFF_PHONE_NUMBER",
		"GATHER_TIMEOUT_SECONDS",
		"MAX_CONSECUTIVE_FAILURES",
		"CLASSIFIER_URL",
		"CLASSIFIER_API_KEY",
		"CLASSIFIER_MODEL",
		"CLASSIFIER_TIMEOUT",
		"CLASSIFIER_MIN_CONFIDENCE",
		"SCHEDULING_BASE_URL",
		"SCHEDULING_API_KEY",
		"SCHEDULING_TIMEOUT",
		"SCHEDULING_RETRY_ATTEMPTS",
		"SCHEDULING_PATCH_FALLBACK_STATUSES",
		"DEFAULT_PRACTITIONER_ID",
		"DEFAULT_APPOINTMENT_TYPE_ID",
		"APPOINTMENT_DURATION",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
