package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the phone desk service.
type Config struct {
	BindAddr              string
	ShutdownTimeout       time.Duration
	MetricsNamespace      string
	CallInactivityTimeout time.Duration
	TurnMutationTimeout   time.Duration
	LogUtterances         bool

	CallStateDSN string

	ClinicName      string
	ClinicTimezone  string
	ClinicLocation  *time.Location
	ClinicRegion    string
	DefaultTenantID string

	HandoffPhoneNumber     string
	GatherTimeoutSeconds   int
	MaxConsecutiveFailures int

	ClassifierURL           string
	ClassifierAPIKey        string
	ClassifierModel         string
	ClassifierTimeout       time.Duration
	ClassifierMinConfidence float64

	SchedulingBaseURL       string
	SchedulingAPIKey        string
	SchedulingTimeout       time.Duration
	SchedulingRetryAttempts int
	PatchFallbackStatuses   []int

	DefaultPractitionerID    string
	DefaultAppointmentTypeID string
	AppointmentDuration      time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "phonedesk"),
		ShutdownTimeout:          15 * time.Second,
		CallInactivityTimeout:    10 * time.Minute,
		TurnMutationTimeout:      15 * time.Second,
		LogUtterances:            true,
		CallStateDSN:             stringsTrimSpace("CALL_STATE_DSN"),
		ClinicName:               envOrDefault("CLINIC_NAME", "the clinic"),
		ClinicTimezone:           envOrDefault("CLINIC_TIMEZONE", "Australia/Sydney"),
		ClinicRegion:             envOrDefault("CLINIC_REGION", "au"),
		DefaultTenantID:          stringsTrimSpace("DEFAULT_TENANT_ID"),
		HandoffPhoneNumber:       stringsTrimSpace("HANDOFF_PHONE_NUMBER"),
		GatherTimeoutSeconds:     5,
		MaxConsecutiveFailures:   3,
		ClassifierURL:            envOrDefault("CLASSIFIER_URL", "https://api.openai.com/v1/chat/completions"),
		ClassifierAPIKey:         stringsTrimSpace("CLASSIFIER_API_KEY"),
		ClassifierModel:          envOrDefault("CLASSIFIER_MODEL", "gpt-4o-mini"),
		ClassifierTimeout:        400 * time.Millisecond,
		ClassifierMinConfidence:  0.55,
		SchedulingBaseURL:        stringsTrimSpace("SCHEDULING_BASE_URL"),
		SchedulingAPIKey:         stringsTrimSpace("SCHEDULING_API_KEY"),
		SchedulingTimeout:        4 * time.Second,
		SchedulingRetryAttempts:  2,
		PatchFallbackStatuses:    []int{404, 405, 501},
		DefaultPractitionerID:    envOrDefault("DEFAULT_PRACTITIONER_ID", "default"),
		DefaultAppointmentTypeID: envOrDefault("DEFAULT_APPOINTMENT_TYPE_ID", "standard"),
		AppointmentDuration:      15 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CallInactivityTimeout, err = durationFromEnv("APP_CALL_INACTIVITY_TIMEOUT", cfg.CallInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TurnMutationTimeout, err = durationFromEnv("APP_TURN_MUTATION_TIMEOUT", cfg.TurnMutationTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LogUtterances, err = boolFromEnv("APP_LOG_UTTERANCES", cfg.LogUtterances)
	if err != nil {
		return Config{}, err
	}
	cfg.GatherTimeoutSeconds, err = intFromEnv("GATHER_TIMEOUT_SECONDS", cfg.GatherTimeoutSeconds)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxConsecutiveFailures, err = intFromEnv("MAX_CONSECUTIVE_FAILURES", cfg.MaxConsecutiveFailures)
	if err != nil {
		return Config{}, err
	}
	cfg.ClassifierTimeout, err = durationFromEnv("CLASSIFIER_TIMEOUT", cfg.ClassifierTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ClassifierMinConfidence, err = floatFromEnv("CLASSIFIER_MIN_CONFIDENCE", cfg.ClassifierMinConfidence)
	if err != nil {
		return Config{}, err
	}
	cfg.SchedulingTimeout, err = durationFromEnv("SCHEDULING_TIMEOUT", cfg.SchedulingTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SchedulingRetryAttempts, err = intFromEnv("SCHEDULING_RETRY_ATTEMPTS", cfg.SchedulingRetryAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.PatchFallbackStatuses, err = intListFromEnv("SCHEDULING_PATCH_FALLBACK_STATUSES", cfg.PatchFallbackStatuses)
	if err != nil {
		return Config{}, err
	}
	cfg.AppointmentDuration, err = durationFromEnv("APPOINTMENT_DURATION", cfg.AppointmentDuration)
	if err != nil {
		return Config{}, err
	}

	cfg.ClinicLocation, err = time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		return Config{}, fmt.Errorf("CLINIC_TIMEZONE parse error: %w", err)
	}

	if cfg.CallInactivityTimeout < 30*time.Second {
		return Config{}, fmt.Errorf("APP_CALL_INACTIVITY_TIMEOUT must be at least 30s")
	}
	if cfg.TurnMutationTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_TURN_MUTATION_TIMEOUT must be positive")
	}
	if cfg.GatherTimeoutSeconds <= 0 || cfg.GatherTimeoutSeconds > 60 {
		return Config{}, fmt.Errorf("GATHER_TIMEOUT_SECONDS must be between 1 and 60")
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		return Config{}, fmt.Errorf("MAX_CONSECUTIVE_FAILURES must be positive")
	}
	if cfg.ClassifierTimeout <= 0 {
		return Config{}, fmt.Errorf("CLASSIFIER_TIMEOUT must be positive")
	}
	if cfg.ClassifierMinConfidence < 0 || cfg.ClassifierMinConfidence > 1 {
		return Config{}, fmt.Errorf("CLASSIFIER_MIN_CONFIDENCE must be between 0 and 1")
	}
	if cfg.SchedulingTimeout <= 0 {
		return Config{}, fmt.Errorf("SCHEDULING_TIMEOUT must be positive")
	}
	if cfg.SchedulingTimeout >= cfg.TurnMutationTimeout {
		return Config{}, fmt.Errorf("SCHEDULING_TIMEOUT must be shorter than APP_TURN_MUTATION_TIMEOUT")
	}
	if cfg.SchedulingRetryAttempts <= 0 {
		return Config{}, fmt.Errorf("SCHEDULING_RETRY_ATTEMPTS must be positive")
	}
	if cfg.AppointmentDuration < 5*time.Minute {
		return Config{}, fmt.Errorf("APPOINTMENT_DURATION must be at least 5m")
	}

	return cfg, nil
}

// ClassifierEnabled reports whether the LLM intent classifier is configured.
// Without it only the keyword lexicon is used.
func (c Config) ClassifierEnabled() bool {
	return c.ClassifierAPIKey != "" && c.ClassifierURL != ""
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

// intListFromEnv parses a comma separated list such as "404,405,501".
func intListFromEnv(key string, fallback []int) ([]int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%s parse error: %w", key, err)
		}
		if n < 100 || n > 599 {
			return nil, fmt.Errorf("%s parse error: %d is not an HTTP status", key, n)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s parse error: empty list", key)
	}
	return out, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
