package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings    `json:"server"`
	Sources   []SourceConfig    `json:"sources"`
	Aggregate AggregateSettings `json:"aggregate"`
	Resolver  ResolverSettings  `json:"resolver"`
	Log       LogConfig         `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// SourceConfig describes one lookup backend. Type "site" scrapes a catalog
// site using a named profile; type "kodik" speaks the Kodik token API; type
// "remote" forwards the query to another instance of this service over HTTP.
type SourceConfig struct {
	Name    string `json:"name"`
	Type    string `json:"type"` // site | kodik | remote
	URL     string `json:"url,omitempty"`
	Profile string `json:"profile,omitempty"`
	Token   string `json:"token,omitempty"`
	Enabled bool   `json:"enabled"`
}

type AggregateSettings struct {
	TimeoutSeconds int `json:"timeoutSeconds"`
}

// ResolverSettings holds the default link resolution provider. Requests may
// override both fields per call.
type ResolverSettings struct {
	Provider string `json:"provider"`
	Token    string `json:"token,omitempty"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration written on first start.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 8080},
		Sources: []SourceConfig{
			{Name: "eneyida", Type: "site", Profile: "eneyida", Enabled: true},
			{Name: "uaflix", Type: "site", Profile: "uaflix", Enabled: true},
			{Name: "uaserial", Type: "site", Profile: "uaserial", Enabled: true},
			{Name: "kodik", Type: "kodik", Enabled: false},
		},
		Aggregate: AggregateSettings{TimeoutSeconds: 8},
		Resolver:  ResolverSettings{Provider: "none"},
		Log: LogConfig{
			File:       "",
			MaxSize:    10,
			MaxAge:     14,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	fs   afero.Fs
	path string
}

func NewManager(configPath string) *Manager {
	return NewManagerWithFs(afero.NewOsFs(), configPath)
}

func NewManagerWithFs(filesystem afero.Fs, configPath string) *Manager {
	return &Manager{fs: filesystem, path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return m.fs.MkdirAll(dir, 0o755)
}

// Load reads settings from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := m.fs.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}

	data, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for configs that predate a field
	if s.Aggregate.TimeoutSeconds <= 0 {
		s.Aggregate.TimeoutSeconds = 8
	}
	if strings.TrimSpace(s.Resolver.Provider) == "" {
		s.Resolver.Provider = "none"
	}
	if s.Server.Port == 0 {
		s.Server.Port = 8080
	}
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = "0.0.0.0"
	}
	return s, nil
}

// Save writes settings atomically-ish via temp file then rename.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmp := m.path + ".tmp"
	if err := afero.WriteFile(m.fs, tmp, data, 0o644); err != nil {
		return err
	}
	return m.fs.Rename(tmp, m.path)
}

// EnabledSources filters out disabled source entries in configured order.
func (s Settings) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(s.Sources))
	for _, src := range s.Sources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out
}
