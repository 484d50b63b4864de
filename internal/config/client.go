package config

import (
	"errors"
	"net/url"
)

// ClientConfig configures the terminal chat client.
type ClientConfig struct {
	BackendURL       string       `yaml:"backend_url"`
	RequestTimeoutMS int          `yaml:"request_timeout_ms"`
	AudioDir         string       `yaml:"audio_dir"`
	PrefsPath        string       `yaml:"prefs_path"`
	LogLevel         string       `yaml:"log_level"`
	Remote           RemoteConfig `yaml:"remote"`
}

// RemoteConfig selects the replica that signed-in sessions sync to.
type RemoteConfig struct {
	Mode            string    `yaml:"mode"` // none, docstore, firestore
	Bus             BusConfig `yaml:"bus"`
	ProjectID       string    `yaml:"project_id"`
	CredentialsFile string    `yaml:"credentials_file"`
	RequestTimeout  int       `yaml:"request_timeout_ms"`
}

func DefaultClient() ClientConfig {
	return ClientConfig{
		BackendURL:       "http://localhost:8080",
		RequestTimeoutMS: 90000,
		AudioDir:         "",
		PrefsPath:        "./data/voicechat-prefs.yaml",
		LogLevel:         "warn",
		Remote: RemoteConfig{
			Mode: "docstore",
			Bus: BusConfig{
				Servers:        []string{"nats://localhost:4222"},
				ConnectTimeout: 2000,
			},
			RequestTimeout: 5000,
		},
	}
}

func LoadClient(path string) (ClientConfig, error) {
	cfg := DefaultClient()
	if err := readYAML(path, &cfg); err != nil {
		return cfg, err
	}
	applyClientEnvOverrides(&cfg)
	if err := validateClient(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyClientEnvOverrides(cfg *ClientConfig) {
	overrideString(&cfg.BackendURL, "VOICECHAT_BACKEND_URL")
	overrideInt(&cfg.RequestTimeoutMS, "VOICECHAT_REQUEST_TIMEOUT_MS")
	overrideString(&cfg.AudioDir, "VOICECHAT_AUDIO_DIR")
	overrideString(&cfg.PrefsPath, "VOICECHAT_PREFS_PATH")
	overrideString(&cfg.LogLevel, "VOICECHAT_LOG_LEVEL")
	overrideString(&cfg.Remote.Mode, "VOICECHAT_REMOTE_MODE")
	overrideStringSlice(&cfg.Remote.Bus.Servers, "VOICECHAT_REMOTE_SERVERS")
	overrideString(&cfg.Remote.Bus.Username, "VOICECHAT_REMOTE_USERNAME")
	overrideString(&cfg.Remote.Bus.Password, "VOICECHAT_REMOTE_PASSWORD")
	overrideString(&cfg.Remote.Bus.Token, "VOICECHAT_REMOTE_TOKEN")
	overrideString(&cfg.Remote.ProjectID, "VOICECHAT_REMOTE_PROJECT_ID")
	overrideString(&cfg.Remote.CredentialsFile, "VOICECHAT_REMOTE_CREDENTIALS_FILE")
	overrideInt(&cfg.Remote.RequestTimeout, "VOICECHAT_REMOTE_REQUEST_TIMEOUT_MS")
}

func validateClient(cfg ClientConfig) error {
	if cfg.BackendURL == "" {
		return errors.New("backend_url must not be empty")
	}
	if u, err := url.Parse(cfg.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("backend_url must be an absolute URL")
	}
	if cfg.RequestTimeoutMS <= 0 {
		return errors.New("request_timeout_ms must be positive")
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	switch cfg.Remote.Mode {
	case "none":
	case "docstore":
		if len(cfg.Remote.Bus.Servers) == 0 {
			return errors.New("remote.bus.servers must not be empty when remote.mode=docstore")
		}
	case "firestore":
		if cfg.Remote.ProjectID == "" {
			return errors.New("remote.project_id must be set when remote.mode=firestore")
		}
	default:
		return errors.New("remote.mode must be one of none|docstore|firestore")
	}
	if cfg.Remote.RequestTimeout <= 0 {
		return errors.New("remote.request_timeout_ms must be positive")
	}
	return nil
}
