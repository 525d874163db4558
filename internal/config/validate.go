package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

var validLogLevels = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}

// Validate checks a Config for issues. Returns nil if valid.
// Speech settings are only needed by the audio route and are checked
// separately by ValidateSpeech.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Server validation
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "server.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Server.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Server.Bind != "" && !slices.Contains(validBinds, cfg.Server.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "server.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Server.Bind),
		})
	}
	if cfg.Server.Bind == "custom" && cfg.Server.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "server.customBindHost",
			Message: "required when bind: custom",
		})
	}

	// LLM validation
	validProviders := []string{"openai", "ollama"}
	if !slices.Contains(validProviders, cfg.LLM.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "llm.provider",
			Message: fmt.Sprintf("must be one of %v, got %q", validProviders, cfg.LLM.Provider),
		})
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "llm.apiKey",
			Message: "required for openai (or set OPENAI_API_KEY)",
		})
	}
	if cfg.LLM.Model == "" {
		issues = append(issues, ValidationIssue{
			Path:    "llm.model",
			Message: "model is required",
		})
	}
	if t := cfg.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		issues = append(issues, ValidationIssue{
			Path:    "llm.temperature",
			Message: fmt.Sprintf("must be between 0 and 2, got %g", *t),
		})
	}
	if cfg.LLM.PhaseTimeoutSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "llm.phaseTimeoutSeconds",
			Message: "must not be negative",
		})
	}

	// Weather validation
	if cfg.Weather.APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "weather.apiKey",
			Message: "required (or set WEATHER_API_KEY)",
		})
	}

	// Calendar validation
	if cfg.Calendar.LookaheadDays < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "calendar.lookaheadDays",
			Message: "must not be negative",
		})
	}
	if cfg.Calendar.MaxResults < 0 || cfg.Calendar.MaxResults > 2500 {
		issues = append(issues, ValidationIssue{
			Path:    "calendar.maxResults",
			Message: fmt.Sprintf("must be 0-2500, got %d", cfg.Calendar.MaxResults),
		})
	}

	// Logging validation
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	return issues
}

// ValidateSpeech checks the settings required to synthesize audio replies.
func ValidateSpeech(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	if cfg.Speech.APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "speech.apiKey",
			Message: "required (or set ELEVENLABS_API_KEY)",
		})
	}
	if cfg.Speech.VoiceID == "" {
		issues = append(issues, ValidationIssue{
			Path:    "speech.voiceId",
			Message: "required (or set VOICE_ID)",
		})
	}
	for _, f := range []struct {
		path string
		val  float64
	}{
		{"speech.stability", cfg.Speech.Stability},
		{"speech.similarityBoost", cfg.Speech.SimilarityBoost},
	} {
		if f.val < 0 || f.val > 1 {
			issues = append(issues, ValidationIssue{
				Path:    f.path,
				Message: fmt.Sprintf("must be between 0 and 1, got %g", f.val),
			})
		}
	}
	return issues
}
