package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName   string              `yaml:"runtime_name"`
	Environment   string              `yaml:"environment"`
	HTTP          HTTPConfig          `yaml:"http"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Bus           BusConfig           `yaml:"bus"`
	Languages     []LanguageEntry     `yaml:"languages"`
	Conversation  ConversationConfig  `yaml:"conversation"`
	Capture       CaptureConfig       `yaml:"capture"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	LLM           LLMConfig           `yaml:"llm"`
	Synthesis     SynthesisConfig     `yaml:"synthesis"`
	Playback      PlaybackConfig      `yaml:"playback"`
	Delivery      DeliveryConfig      `yaml:"delivery"`
	RecordStore   RecordStoreConfig   `yaml:"record_store"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type LanguageEntry struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	BackendCode string `yaml:"backend_code"`
}

type ConversationConfig struct {
	ContextWindow   int    `yaml:"context_window"`
	DoctorLanguage  string `yaml:"doctor_language"`
	PatientLanguage string `yaml:"patient_language"`
}

type CaptureConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

// RetryConfig bounds a single logical service call. The product behavior is
// one attempt with no timeout; both knobs exist so deployments can harden.
type RetryConfig struct {
	TimeoutMS   int `yaml:"timeout_ms"`
	MaxAttempts int `yaml:"max_attempts"`
}

type TranscriptionConfig struct {
	Endpoint string      `yaml:"endpoint"`
	APIKey   string      `yaml:"api_key"`
	ModelID  string      `yaml:"model_id"`
	Retry    RetryConfig `yaml:"retry"`
}

type LLMConfig struct {
	Mode        string      `yaml:"mode"` // mock, ollama, exec
	Endpoint    string      `yaml:"endpoint"`
	Command     string      `yaml:"command"`
	Model       string      `yaml:"model"`
	MaxTokens   int         `yaml:"max_tokens"`
	Temperature float64     `yaml:"temperature"`
	Retry       RetryConfig `yaml:"retry"`
}

type SynthesisConfig struct {
	Endpoint     string      `yaml:"endpoint"`
	APIKey       string      `yaml:"api_key"`
	VoiceID      string      `yaml:"voice_id"`
	ModelID      string      `yaml:"model_id"`
	OutputFormat string      `yaml:"output_format"`
	Retry        RetryConfig `yaml:"retry"`
}

type PlaybackConfig struct {
	Mode    string `yaml:"mode"` // mock, exec
	Command string `yaml:"command"`
}

type DeliveryConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Endpoint           string `yaml:"endpoint"`
	AccessToken        string `yaml:"access_token"`
	PhoneNumberID      string `yaml:"phone_number_id"`
	DefaultCountryCode string `yaml:"default_country_code"`
}

type RecordStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "caretalk-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Conversation: ConversationConfig{
			ContextWindow:   3,
			DoctorLanguage:  "eng",
			PatientLanguage: "urd",
		},
		Capture: CaptureConfig{
			Mode:       "mock",
			SampleRate: 16000,
			Channels:   1,
		},
		Transcription: TranscriptionConfig{
			Endpoint: "https://api.elevenlabs.io/v1/speech-to-text",
			ModelID:  "scribe_v1",
			Retry:    RetryConfig{TimeoutMS: 0, MaxAttempts: 1},
		},
		LLM: LLMConfig{
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3.2:latest",
			MaxTokens:   512,
			Temperature: 0.2,
			Retry:       RetryConfig{TimeoutMS: 0, MaxAttempts: 1},
		},
		Synthesis: SynthesisConfig{
			Endpoint:     "https://api.elevenlabs.io/v1/text-to-speech",
			VoiceID:      "JBFqnCBsd6RMkjVDRZzb",
			ModelID:      "eleven_multilingual_v2",
			OutputFormat: "mp3_44100_128",
			Retry:        RetryConfig{TimeoutMS: 0, MaxAttempts: 1},
		},
		Playback: PlaybackConfig{
			Mode: "mock",
		},
		Delivery: DeliveryConfig{
			Enabled:            false,
			Endpoint:           "https://graph.facebook.com/v23.0",
			DefaultCountryCode: "92",
		},
		RecordStore: RecordStoreConfig{
			Path:          "./data/caretalk-records.db",
			RetentionMode: "persistent",
			RetentionDays: 0,
			MaxSessions:   10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "CARETALK_RUNTIME_NAME")
	overrideString(&cfg.Environment, "CARETALK_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "CARETALK_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "CARETALK_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "CARETALK_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "CARETALK_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "CARETALK_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "CARETALK_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "CARETALK_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "CARETALK_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "CARETALK_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "CARETALK_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "CARETALK_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "CARETALK_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "CARETALK_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "CARETALK_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Conversation.ContextWindow, "CARETALK_CONVERSATION_CONTEXT_WINDOW")
	overrideString(&cfg.Conversation.DoctorLanguage, "CARETALK_CONVERSATION_DOCTOR_LANGUAGE")
	overrideString(&cfg.Conversation.PatientLanguage, "CARETALK_CONVERSATION_PATIENT_LANGUAGE")
	overrideString(&cfg.Capture.Mode, "CARETALK_CAPTURE_MODE")
	overrideString(&cfg.Capture.Command, "CARETALK_CAPTURE_COMMAND")
	overrideInt(&cfg.Capture.SampleRate, "CARETALK_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Channels, "CARETALK_CAPTURE_CHANNELS")
	overrideString(&cfg.Transcription.Endpoint, "CARETALK_TRANSCRIPTION_ENDPOINT")
	overrideString(&cfg.Transcription.APIKey, "CARETALK_TRANSCRIPTION_API_KEY")
	overrideString(&cfg.Transcription.ModelID, "CARETALK_TRANSCRIPTION_MODEL_ID")
	overrideInt(&cfg.Transcription.Retry.TimeoutMS, "CARETALK_TRANSCRIPTION_TIMEOUT_MS")
	overrideInt(&cfg.Transcription.Retry.MaxAttempts, "CARETALK_TRANSCRIPTION_MAX_ATTEMPTS")
	overrideString(&cfg.LLM.Mode, "CARETALK_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "CARETALK_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "CARETALK_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "CARETALK_LLM_MODEL")
	overrideInt(&cfg.LLM.MaxTokens, "CARETALK_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "CARETALK_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.Retry.TimeoutMS, "CARETALK_LLM_TIMEOUT_MS")
	overrideInt(&cfg.LLM.Retry.MaxAttempts, "CARETALK_LLM_MAX_ATTEMPTS")
	overrideString(&cfg.Synthesis.Endpoint, "CARETALK_SYNTHESIS_ENDPOINT")
	overrideString(&cfg.Synthesis.APIKey, "CARETALK_SYNTHESIS_API_KEY")
	overrideString(&cfg.Synthesis.VoiceID, "CARETALK_SYNTHESIS_VOICE_ID")
	overrideString(&cfg.Synthesis.ModelID, "CARETALK_SYNTHESIS_MODEL_ID")
	overrideString(&cfg.Synthesis.OutputFormat, "CARETALK_SYNTHESIS_OUTPUT_FORMAT")
	overrideInt(&cfg.Synthesis.Retry.TimeoutMS, "CARETALK_SYNTHESIS_TIMEOUT_MS")
	overrideInt(&cfg.Synthesis.Retry.MaxAttempts, "CARETALK_SYNTHESIS_MAX_ATTEMPTS")
	overrideString(&cfg.Playback.Mode, "CARETALK_PLAYBACK_MODE")
	overrideString(&cfg.Playback.Command, "CARETALK_PLAYBACK_COMMAND")
	overrideBool(&cfg.Delivery.Enabled, "CARETALK_DELIVERY_ENABLED")
	overrideString(&cfg.Delivery.Endpoint, "CARETALK_DELIVERY_ENDPOINT")
	overrideString(&cfg.Delivery.AccessToken, "CARETALK_DELIVERY_ACCESS_TOKEN")
	overrideString(&cfg.Delivery.PhoneNumberID, "CARETALK_DELIVERY_PHONE_NUMBER_ID")
	overrideString(&cfg.Delivery.DefaultCountryCode, "CARETALK_DELIVERY_DEFAULT_COUNTRY_CODE")
	overrideString(&cfg.RecordStore.Path, "CARETALK_RECORD_STORE_PATH")
	overrideString(&cfg.RecordStore.RetentionMode, "CARETALK_RECORD_STORE_RETENTION_MODE")
	overrideInt(&cfg.RecordStore.RetentionDays, "CARETALK_RECORD_STORE_RETENTION_DAYS")
	overrideInt(&cfg.RecordStore.MaxSessions, "CARETALK_RECORD_STORE_MAX_SESSIONS")
	overrideBool(&cfg.RecordStore.VacuumOnStart, "CARETALK_RECORD_STORE_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Conversation.ContextWindow < 0 {
		return errors.New("conversation.context_window must be >= 0")
	}
	if cfg.Conversation.DoctorLanguage == "" || cfg.Conversation.PatientLanguage == "" {
		return errors.New("conversation.doctor_language and conversation.patient_language must not be empty")
	}
	switch cfg.Capture.Mode {
	case "mock", "exec":
	default:
		return errors.New("capture.mode must be one of mock|exec")
	}
	if cfg.Capture.Mode == "exec" && cfg.Capture.Command == "" {
		return errors.New("capture.command must be set when mode=exec")
	}
	if cfg.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if cfg.Capture.Channels <= 0 {
		return errors.New("capture.channels must be positive")
	}
	if cfg.Transcription.Endpoint == "" {
		return errors.New("transcription.endpoint must not be empty")
	}
	if err := validateRetry("transcription", cfg.Transcription.Retry); err != nil {
		return err
	}
	switch cfg.LLM.Mode {
	case "mock", "ollama", "exec":
	default:
		return errors.New("llm.mode must be one of mock|ollama|exec")
	}
	if cfg.LLM.Mode == "ollama" && cfg.LLM.Endpoint == "" {
		return errors.New("llm.endpoint must be set when mode=ollama")
	}
	if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
		return errors.New("llm.command must be set when mode=exec")
	}
	if err := validateRetry("llm", cfg.LLM.Retry); err != nil {
		return err
	}
	if cfg.Synthesis.Endpoint == "" {
		return errors.New("synthesis.endpoint must not be empty")
	}
	if err := validateRetry("synthesis", cfg.Synthesis.Retry); err != nil {
		return err
	}
	switch cfg.Playback.Mode {
	case "mock", "exec":
	default:
		return errors.New("playback.mode must be one of mock|exec")
	}
	if cfg.Playback.Mode == "exec" && cfg.Playback.Command == "" {
		return errors.New("playback.command must be set when mode=exec")
	}
	if cfg.Delivery.Enabled {
		if cfg.Delivery.Endpoint == "" {
			return errors.New("delivery.endpoint must not be empty when delivery is enabled")
		}
		if cfg.Delivery.DefaultCountryCode == "" {
			return errors.New("delivery.default_country_code must not be empty when delivery is enabled")
		}
	}
	if cfg.RecordStore.Path == "" {
		return errors.New("record_store.path must not be empty")
	}
	switch cfg.RecordStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("record_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.RecordStore.RetentionDays < 0 {
		return errors.New("record_store.retention_days must be >= 0")
	}
	for _, lang := range cfg.Languages {
		if lang.Code == "" || lang.Name == "" {
			return errors.New("languages entries must have both code and name")
		}
	}
	return nil
}

func validateRetry(section string, rc RetryConfig) error {
	if rc.MaxAttempts < 1 {
		return fmt.Errorf("%s.retry.max_attempts must be >= 1", section)
	}
	if rc.TimeoutMS < 0 {
		return fmt.Errorf("%s.retry.timeout_ms must be >= 0", section)
	}
	return nil
}
