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
	StdoutTraces   bool   `yaml:"stdout_traces"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Store       StoreConfig     `yaml:"store"`
	STT         STTConfig       `yaml:"stt"`
	LLM         LLMConfig       `yaml:"llm"`
	TTS         TTSConfig       `yaml:"tts"`
	Relay       RelayConfig     `yaml:"relay"`
	Extract     ExtractConfig   `yaml:"extract"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type STTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"`
	Command    string `yaml:"command"`
	ModelPath  string `yaml:"model_path"`
	Language   string `yaml:"language"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type LLMConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Mode        string  `yaml:"mode"` // mock, ollama, exec
	Endpoint    string  `yaml:"endpoint"`
	Command     string  `yaml:"command"`
	Model       string  `yaml:"model"`
	System      string  `yaml:"system"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type TTSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"`
	Command    string `yaml:"command"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type RelayConfig struct {
	DefaultQuestion string  `yaml:"default_question"`
	MaxUploadBytes  int64   `yaml:"max_upload_bytes"`
	MaxDocumentRune int     `yaml:"max_document_runes"`
	RateLimit       float64 `yaml:"rate_limit_per_sec"`
	RateBurst       int     `yaml:"rate_burst"`
	TimeoutMS       int     `yaml:"timeout_ms"`
}

type ExtractConfig struct {
	Command string `yaml:"command"`
}

func Default() Config {
	return Config{
		RuntimeName: "voicechatd",
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
			Host:           "0.0.0.0",
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path: "./data/voicechat.db",
		},
		STT: STTConfig{
			Enabled:    false,
			Mode:       "mock",
			SampleRate: 16000,
			Channels:   1,
		},
		LLM: LLMConfig{
			Enabled:     true,
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3.2:latest",
			System:      "You are a friendly voice assistant. Keep answers short enough to be read aloud.",
			MaxTokens:   256,
			Temperature: 0.7,
		},
		TTS: TTSConfig{
			Enabled:    true,
			Mode:       "mock",
			Voice:      "en-US",
			SampleRate: 22050,
			Channels:   1,
		},
		Relay: RelayConfig{
			DefaultQuestion: DefaultQuestion,
			MaxUploadBytes:  10 << 20,
			MaxDocumentRune: 12000,
			RateLimit:       5,
			RateBurst:       10,
			TimeoutMS:       60000,
		},
	}
}

// DefaultQuestion is asked about an uploaded document when the user typed nothing.
const DefaultQuestion = "Summarize this document."

func Load(path string) (Config, error) {
	cfg := Default()
	if err := readYAML(path, &cfg); err != nil {
		return cfg, err
	}
	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func readYAML(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %w", err)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOICECHAT_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOICECHAT_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOICECHAT_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOICECHAT_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOICECHAT_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOICECHAT_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOICECHAT_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOICECHAT_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Telemetry.StdoutTraces, "VOICECHAT_TELEMETRY_STDOUT_TRACES")
	overrideBool(&cfg.Bus.Embedded, "VOICECHAT_BUS_EMBEDDED")
	overrideString(&cfg.Bus.Host, "VOICECHAT_BUS_HOST")
	overrideInt(&cfg.Bus.Port, "VOICECHAT_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "VOICECHAT_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "VOICECHAT_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOICECHAT_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOICECHAT_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOICECHAT_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOICECHAT_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOICECHAT_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "VOICECHAT_STORE_PATH")
	overrideBool(&cfg.Store.VacuumOnStart, "VOICECHAT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.STT.Enabled, "VOICECHAT_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "VOICECHAT_STT_MODE")
	overrideString(&cfg.STT.Command, "VOICECHAT_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "VOICECHAT_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "VOICECHAT_STT_LANGUAGE")
	overrideInt(&cfg.STT.SampleRate, "VOICECHAT_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "VOICECHAT_STT_CHANNELS")
	overrideBool(&cfg.LLM.Enabled, "VOICECHAT_LLM_ENABLED")
	overrideString(&cfg.LLM.Mode, "VOICECHAT_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "VOICECHAT_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "VOICECHAT_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "VOICECHAT_LLM_MODEL")
	overrideString(&cfg.LLM.System, "VOICECHAT_LLM_SYSTEM")
	overrideInt(&cfg.LLM.MaxTokens, "VOICECHAT_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "VOICECHAT_LLM_TEMPERATURE")
	overrideBool(&cfg.TTS.Enabled, "VOICECHAT_TTS_ENABLED")
	overrideString(&cfg.TTS.Mode, "VOICECHAT_TTS_MODE")
	overrideString(&cfg.TTS.Command, "VOICECHAT_TTS_COMMAND")
	overrideString(&cfg.TTS.Voice, "VOICECHAT_TTS_VOICE")
	overrideInt(&cfg.TTS.SampleRate, "VOICECHAT_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "VOICECHAT_TTS_CHANNELS")
	overrideString(&cfg.Relay.DefaultQuestion, "VOICECHAT_RELAY_DEFAULT_QUESTION")
	overrideInt64(&cfg.Relay.MaxUploadBytes, "VOICECHAT_RELAY_MAX_UPLOAD_BYTES")
	overrideInt(&cfg.Relay.MaxDocumentRune, "VOICECHAT_RELAY_MAX_DOCUMENT_RUNES")
	overrideFloat(&cfg.Relay.RateLimit, "VOICECHAT_RELAY_RATE_LIMIT_PER_SEC")
	overrideInt(&cfg.Relay.RateBurst, "VOICECHAT_RELAY_RATE_BURST")
	overrideInt(&cfg.Relay.TimeoutMS, "VOICECHAT_RELAY_TIMEOUT_MS")
	overrideString(&cfg.Extract.Command, "VOICECHAT_EXTRACT_COMMAND")
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

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
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
		if cfg.Bus.StoreDir == "" {
			return errors.New("bus.store_dir must not be empty when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if _, err := ParseLogLevel(cfg.Telemetry.LogLevel); err != nil {
		return err
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "mock", "exec":
		default:
			return errors.New("stt.mode must be one of mock|exec")
		}
		if cfg.STT.SampleRate <= 0 {
			return errors.New("stt.sample_rate must be positive")
		}
		if cfg.STT.Channels <= 0 {
			return errors.New("stt.channels must be positive")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	}
	if cfg.LLM.Enabled {
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
		if cfg.LLM.MaxTokens < 0 {
			return errors.New("llm.max_tokens must be >= 0")
		}
	}
	if cfg.TTS.Enabled {
		switch cfg.TTS.Mode {
		case "mock", "exec":
		default:
			return errors.New("tts.mode must be one of mock|exec")
		}
		if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
		if cfg.TTS.SampleRate <= 0 {
			return errors.New("tts.sample_rate must be positive")
		}
		if cfg.TTS.Channels <= 0 {
			return errors.New("tts.channels must be positive")
		}
	}
	if cfg.Relay.MaxUploadBytes <= 0 {
		return errors.New("relay.max_upload_bytes must be positive")
	}
	if cfg.Relay.RateLimit < 0 || cfg.Relay.RateBurst < 0 {
		return errors.New("relay.rate_limit_per_sec and relay.rate_burst must be >= 0")
	}
	if cfg.Relay.TimeoutMS <= 0 {
		return errors.New("relay.timeout_ms must be positive")
	}
	return nil
}
