package config

// Config is the root configuration for the mirror backend.
type Config struct {
	Server   ServerConfig   `yaml:"server,omitempty"`
	LLM      LLMConfig      `yaml:"llm,omitempty"`
	Weather  WeatherConfig  `yaml:"weather,omitempty"`
	Calendar CalendarConfig `yaml:"calendar,omitempty"`
	Speech   SpeechConfig   `yaml:"speech,omitempty"`
	Journal  JournalConfig  `yaml:"journal,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// ServerConfig controls the HTTP/WebSocket gateway the mirror display talks to.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
	Token          string   `yaml:"token,omitempty"` // optional bearer token; empty disables auth
}

// LLMConfig selects the language model used to classify and answer utterances.
type LLMConfig struct {
	Provider            string   `yaml:"provider,omitempty"` // "openai" | "ollama"
	APIKey              string   `yaml:"apiKey,omitempty"`
	Model               string   `yaml:"model,omitempty"`
	Endpoint            string   `yaml:"endpoint,omitempty"` // base URL override
	Temperature         *float64 `yaml:"temperature,omitempty"`
	PhaseTimeoutSeconds int      `yaml:"phaseTimeoutSeconds,omitempty"` // 0 = no per-phase timeout
}

// WeatherConfig configures the weatherapi.com client.
type WeatherConfig struct {
	APIKey          string `yaml:"apiKey,omitempty"`
	BaseURL         string `yaml:"baseUrl,omitempty"`
	DefaultLocation string `yaml:"defaultLocation,omitempty"`
}

// CalendarConfig configures Google Calendar access.
type CalendarConfig struct {
	CredentialsPath string `yaml:"credentialsPath,omitempty"` // OAuth client secret JSON
	TokenPath       string `yaml:"tokenPath,omitempty"`
	TargetCalendar  string `yaml:"targetCalendar,omitempty"` // calendar that receives new events
	LookaheadDays   int    `yaml:"lookaheadDays,omitempty"`
	MaxResults      int    `yaml:"maxResults,omitempty"`
}

// SpeechConfig configures the ElevenLabs text-to-speech client.
type SpeechConfig struct {
	APIKey          string  `yaml:"apiKey,omitempty"`
	VoiceID         string  `yaml:"voiceId,omitempty"`
	BaseURL         string  `yaml:"baseUrl,omitempty"`
	Stability       float64 `yaml:"stability,omitempty"`
	SimilarityBoost float64 `yaml:"similarityBoost,omitempty"`
}

// JournalConfig controls the SQLite turn journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}
