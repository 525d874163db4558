package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Default values shared by Defaults and applyDefaults.
const (
	DefaultPort            = 3000
	DefaultProvider        = "openai"
	DefaultModel           = "gpt-4o"
	DefaultTemperature     = 0.5
	DefaultWeatherBaseURL  = "http://api.weatherapi.com"
	DefaultSpeechBaseURL   = "https://api.elevenlabs.io"
	DefaultTargetCalendar  = "primary"
	DefaultLookaheadDays   = 7
	DefaultMaxResults      = 100
	DefaultStability       = 0.5
	DefaultSimilarityBoost = 0.7
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	temp := DefaultTemperature
	return Config{
		Server: ServerConfig{
			Port: DefaultPort,
			Bind: "loopback",
		},
		LLM: LLMConfig{
			Provider:    DefaultProvider,
			Model:       DefaultModel,
			Temperature: &temp,
		},
		Weather: WeatherConfig{
			BaseURL: DefaultWeatherBaseURL,
		},
		Calendar: CalendarConfig{
			TargetCalendar: DefaultTargetCalendar,
			LookaheadDays:  DefaultLookaheadDays,
			MaxResults:     DefaultMaxResults,
		},
		Speech: SpeechConfig{
			BaseURL:         DefaultSpeechBaseURL,
			Stability:       DefaultStability,
			SimilarityBoost: DefaultSimilarityBoost,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
