package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every service setting.
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	AI         AIConfig
	Classifier ClassifierConfig
	Alert      AlertConfig
	Voice      VoiceConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	alert, err := loadAlertConfig()
	if err != nil {
		return nil, err
	}

	voice, err := loadVoiceConfig(server)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		Log:        logCfg,
		AI:         ai,
		Classifier: ClassifierConfig{RulesFile: strings.TrimSpace(os.Getenv("CLASSIFIER_RULES_FILE"))},
		Alert:      alert,
		Voice:      voice,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig selects log verbosity and the optional JSON log file.
type LogConfig struct {
	Level slog.Level
	File  string
}

func loadLogConfig() (LogConfig, error) {
	level, err := ParseLogLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{Level: level, File: strings.TrimSpace(os.Getenv("LOG_FILE"))}, nil
}

// Provider names the upstream that produces reply tokens.
type Provider string

const (
	ProviderGateway Provider = "gateway"
	ProviderArk     Provider = "ark"
)

// AIConfig describes the language-model upstream.
type AIConfig struct {
	Provider          Provider
	GatewayURL        string
	GatewayAPIKey     string
	Model             string
	Temperature       float64
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	StreamIdleTimeout time.Duration
	Ark               ArkConfig
}

// ArkConfig carries Volcengine Ark credentials for the eino-backed upstream.
type ArkConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
	TopP      *float64
	MaxTokens *int
}

// Enabled reports whether the gateway has credentials.
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.Ark.Enabled()
	default:
		return c.GatewayURL != "" && c.GatewayAPIKey != ""
	}
}

// Enabled reports whether the required keys are present.
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an Ark chat model with the shared temperature.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Ark.Enabled() {
		return nil, fmt.Errorf("ark credentials missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	temperature := float32(c.Temperature)

	var topP *float32
	if c.Ark.TopP != nil {
		val := float32(*c.Ark.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.Ark.BaseURL,
		Region:      c.Ark.Region,
		APIKey:      c.Ark.APIKey,
		AccessKey:   c.Ark.AccessKey,
		SecretKey:   c.Ark.SecretKey,
		Model:       c.Ark.Model,
		MaxTokens:   c.Ark.MaxTokens,
		Temperature: &temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := Provider(strings.ToLower(getEnvOrDefault("AI_PROVIDER", string(ProviderGateway))))
	if provider != ProviderGateway && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature := 0.7
	if override, err := parseOptionalFloatEnv("AI_TEMPERATURE"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		temperature = *override
	}

	maxRetries := 3
	if override, err := parseOptionalIntEnv("AI_MAX_RETRIES"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 0 {
			maxRetries = 0
		} else {
			maxRetries = *override
		}
	}

	baseDelay, err := parseDurationEnv("AI_RETRY_BASE_DELAY", 2*time.Second)
	if err != nil {
		return AIConfig{}, err
	}
	maxDelay, err := parseDurationEnv("AI_RETRY_MAX_DELAY", 15*time.Second)
	if err != nil {
		return AIConfig{}, err
	}
	idle, err := parseDurationEnv("AI_STREAM_IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}
	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	apiKey := strings.TrimSpace(os.Getenv("AI_GATEWAY_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("LOVABLE_API_KEY"))
	}

	return AIConfig{
		Provider:          provider,
		GatewayURL:        getEnvOrDefault("AI_GATEWAY_URL", "https://ai.gateway.lovable.dev/v1/chat/completions"),
		GatewayAPIKey:     apiKey,
		Model:             getEnvOrDefault("AI_MODEL", "google/gemini-2.5-flash-lite"),
		Temperature:       temperature,
		MaxRetries:        maxRetries,
		RetryBaseDelay:    baseDelay,
		RetryMaxDelay:     maxDelay,
		StreamIdleTimeout: idle,
		Ark: ArkConfig{
			APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:     strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
			TopP:      topP,
			MaxTokens: maxTokens,
		},
	}, nil
}

// ClassifierConfig points at an optional TOML rule table.
type ClassifierConfig struct {
	RulesFile string
}

// AlertStoreKind selects the crisis alert backend.
type AlertStoreKind string

const (
	AlertStoreMemory AlertStoreKind = "memory"
	AlertStoreSQLite AlertStoreKind = "sqlite"
	AlertStoreMySQL  AlertStoreKind = "mysql"
)

// AlertConfig describes where crisis alerts are persisted.
type AlertConfig struct {
	Store        AlertStoreKind
	DSN          string
	WriteTimeout time.Duration
}

func loadAlertConfig() (AlertConfig, error) {
	kind := AlertStoreKind(strings.ToLower(getEnvOrDefault("ALERT_STORE", string(AlertStoreMemory))))
	switch kind {
	case AlertStoreMemory:
	case AlertStoreSQLite, AlertStoreMySQL:
		if strings.TrimSpace(os.Getenv("ALERT_DB_DSN")) == "" && kind == AlertStoreMySQL {
			return AlertConfig{}, fmt.Errorf("ALERT_DB_DSN is required when ALERT_STORE=%s", kind)
		}
	default:
		return AlertConfig{}, fmt.Errorf("invalid ALERT_STORE value %q", kind)
	}

	timeout, err := parseDurationEnv("ALERT_WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return AlertConfig{}, err
	}

	return AlertConfig{
		Store:        kind,
		DSN:          getEnvOrDefault("ALERT_DB_DSN", "file:alerts.db?_pragma=journal_mode(WAL)"),
		WriteTimeout: timeout,
	}, nil
}

// VoiceConfig drives the voice-chat bridge.
type VoiceConfig struct {
	ChatURL      string
	Debounce     time.Duration
	SpeakTimeout time.Duration
}

func loadVoiceConfig(server ServerConfig) (VoiceConfig, error) {
	debounce, err := parseDurationEnv("VOICE_DEBOUNCE", 3*time.Second)
	if err != nil {
		return VoiceConfig{}, err
	}
	speak, err := parseDurationEnv("VOICE_SPEAK_TIMEOUT", 45*time.Second)
	if err != nil {
		return VoiceConfig{}, err
	}

	host := server.Addr
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}

	return VoiceConfig{
		ChatURL:      getEnvOrDefault("VOICE_CHAT_URL", "http://"+host+"/api/chat"),
		Debounce:     debounce,
		SpeakTimeout: speak,
	}, nil
}

// ParseLogLevel maps a level name onto slog.
func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q", raw)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: negative duration", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
