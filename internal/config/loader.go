package config

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Server.Token = expandEnvVars(cfg.Server.Token)
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	cfg.Weather.APIKey = expandEnvVars(cfg.Weather.APIKey)
	cfg.Speech.APIKey = expandEnvVars(cfg.Speech.APIKey)
	cfg.Speech.VoiceID = expandEnvVars(cfg.Speech.VoiceID)
	cfg.Calendar.CredentialsPath = expandEnvVars(cfg.Calendar.CredentialsPath)
}

// loadDotEnv reads .env files from the config directory and the working
// directory. Variables already present in the environment win.
func loadDotEnv(configPath string) {
	candidates := []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"}
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()
	loadDotEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	// A half-written config would stop the next serve from starting.
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "loopback"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = DefaultProvider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel
	}
	if cfg.LLM.Temperature == nil {
		temp := DefaultTemperature
		cfg.LLM.Temperature = &temp
	}
	if cfg.Weather.BaseURL == "" {
		cfg.Weather.BaseURL = DefaultWeatherBaseURL
	}
	if cfg.Calendar.TargetCalendar == "" {
		cfg.Calendar.TargetCalendar = DefaultTargetCalendar
	}
	if cfg.Calendar.LookaheadDays == 0 {
		cfg.Calendar.LookaheadDays = DefaultLookaheadDays
	}
	if cfg.Calendar.MaxResults == 0 {
		cfg.Calendar.MaxResults = DefaultMaxResults
	}
	if cfg.Speech.BaseURL == "" {
		cfg.Speech.BaseURL = DefaultSpeechBaseURL
	}
	if cfg.Speech.Stability == 0 {
		cfg.Speech.Stability = DefaultStability
	}
	if cfg.Speech.SimilarityBoost == 0 {
		cfg.Speech.SimilarityBoost = DefaultSimilarityBoost
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads MIRROR_* variables and the provider credential
// variables. MIRROR_* always override; credentials only fill empty fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRROR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MIRROR_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("MIRROR_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("MIRROR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("MIRROR_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	fillFromEnv(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	fillFromEnv(&cfg.Weather.APIKey, "WEATHER_API_KEY")
	fillFromEnv(&cfg.Speech.APIKey, "ELEVENLABS_API_KEY")
	fillFromEnv(&cfg.Speech.VoiceID, "VOICE_ID")
	fillFromEnv(&cfg.Calendar.CredentialsPath, "GOOGLE_CREDENTIALS_PATH")
}

func fillFromEnv(field *string, name string) {
	if *field != "" {
		return
	}
	if v := os.Getenv(name); v != "" {
		*field = v
	}
}
