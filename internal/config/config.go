package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Relay modes select which session engine drives /ws connections.
const (
	ModeQuestionnaire = "questionnaire"
	ModeConversation  = "conversation"
)

// Company match policies for the topic_entity question.
const (
	CompanyMatchExact = "exact"
	CompanyMatchFold  = "fold"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	// RelayMode is "questionnaire" or "conversation".
	RelayMode       string
	WelcomeGreeting string
	SystemPrompt    string

	OpenAIAPIKey string
	OpenAIModel  string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioBaseURL    string

	SilenceTimeout    time.Duration
	MaxInvalidAnswers int

	TranscriptDedupTTL    time.Duration
	ComplianceContextSize int
	ComplianceClassify    bool

	// KnownCompanies is the allow-list for the company question;
	// CompanyMatch selects the equality policy ("exact" or "fold").
	KnownCompanies []string
	CompanyMatch   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		RelayMode: strings.ToLower(strings.TrimSpace(getEnv("RELAY_MODE", ModeQuestionnaire))),
		WelcomeGreeting: getEnv("WELCOME_GREETING",
			"Hi! I am a voice assistant powered by Twilio and Open A I ."),
		SystemPrompt: getEnv("SYSTEM_PROMPT",
			"You are a helpful voice assistant on a phone call. Keep answers short and conversational; the caller hears them spoken aloud."),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioBaseURL:    getEnv("TWILIO_BASE_URL", ""),

		SilenceTimeout:    getEnvAsDuration("SILENCE_TIMEOUT", 30*time.Second),
		MaxInvalidAnswers: getEnvAsInt("MAX_INVALID_ANSWERS", 3),

		TranscriptDedupTTL:    getEnvAsDuration("TRANSCRIPT_DEDUP_TTL", 3*time.Second),
		ComplianceContextSize: getEnvAsInt("COMPLIANCE_CONTEXT_SIZE", 3),
		ComplianceClassify:    getEnvAsBool("COMPLIANCE_CLASSIFY", true),

		KnownCompanies: getEnvAsList("KNOWN_COMPANIES", []string{"Twilio", "SendGrid", "Segment"}),
		CompanyMatch:   strings.ToLower(strings.TrimSpace(getEnv("COMPANY_MATCH", CompanyMatchExact))),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
	}
}

// WebSocketURL derives the public wss:// endpoint callers are relayed to.
func (c *Config) WebSocketURL() string {
	host := strings.TrimSpace(c.PublicBaseURL)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "wss://")
	host = strings.TrimSuffix(host, "/")
	if host == "" {
		return ""
	}
	return "wss://" + host + "/ws"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList retrieves a comma-separated environment variable as a string slice.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
