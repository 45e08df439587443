// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for tabchat.
//
// Configuration file location: ~/.tabchat/config.toml, falling back to
// built-in defaults. TABCHAT_* environment variables override both.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete tabchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Ollama inference server
	Ollama OllamaConfig `toml:"ollama" json:"ollama"`

	// Browser DevTools connection
	Browser BrowserConfig `toml:"browser" json:"browser"`

	// Local messaging server for the browser panel
	Server ServerConfig `toml:"server" json:"server"`

	// History and model persistence
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Logging and telemetry
	Logging LoggingConfig `toml:"logging" json:"logging"`

	// Terminal UI
	UI UIConfig `toml:"ui" json:"ui"`
}

// OllamaConfig configures the model relay.
type OllamaConfig struct {
	// URL is the Ollama API base URL
	URL string `toml:"url" json:"url"`

	// DefaultModel is used when nothing has been selected yet
	DefaultModel string `toml:"default_model" json:"default_model"`

	// TimeoutSecs bounds catalog and liveness requests
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`

	// StreamTimeoutSecs bounds waiting for a generation's response headers
	StreamTimeoutSecs int `toml:"stream_timeout_secs" json:"stream_timeout_secs"`
}

// BrowserConfig configures the tab platform.
type BrowserConfig struct {
	// ControlURL is a DevTools websocket URL, http://host:port or a port
	ControlURL string `toml:"control_url" json:"control_url"`

	// EvalTimeoutMs bounds each in-page call
	EvalTimeoutMs int `toml:"eval_timeout_ms" json:"eval_timeout_ms"`

	// MaxParallel bounds concurrent tab extractions
	MaxParallel int `toml:"max_parallel" json:"max_parallel"`
}

// ServerConfig configures the messaging boundary.
type ServerConfig struct {
	// Addr is the listen address; loopback by default
	Addr string `toml:"addr" json:"addr"`

	// AuthToken, when set, is required as a bearer token
	AuthToken string `toml:"auth_token" json:"auth_token"`

	// AllowedOrigins lists extra CORS origins; chrome-extension:// is always allowed
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`

	// RateLimit is requests per second per client; 0 disables limiting
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`

	// RateBurst is the limiter burst size
	RateBurst int `toml:"rate_burst" json:"rate_burst"`
}

// StorageConfig configures persisted state.
type StorageConfig struct {
	// Backend is "sqlite" or "json"
	Backend string `toml:"backend" json:"backend"`

	// DataDir holds the database or JSON documents; defaults to ~/.tabchat/data
	DataDir string `toml:"data_dir" json:"data_dir"`

	// Conversation selects the history to use
	Conversation string `toml:"conversation" json:"conversation"`
}

// LoggingConfig configures logging and telemetry.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `toml:"level" json:"level"`

	// File is the rotated log file; defaults to ~/.tabchat/logs/tabchat.log
	File string `toml:"file" json:"file"`

	MaxSizeMB  int `toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int `toml:"max_backups" json:"max_backups"`
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days"`

	// Telemetry enables OpenTelemetry trace and metric export
	Telemetry bool `toml:"telemetry" json:"telemetry"`

	// TelemetryDir receives traces.jsonl and metrics.jsonl
	TelemetryDir string `toml:"telemetry_dir" json:"telemetry_dir"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Theme is dark, light or auto
	Theme string `toml:"theme" json:"theme"`

	// RenderMarkdown renders answers with glamour on a TTY
	RenderMarkdown bool `toml:"render_markdown" json:"render_markdown"`

	// IncludePage sends the active tab when no tab is mentioned
	IncludePage bool `toml:"include_page" json:"include_page"`
}

// =============================================================================
// DEFAULT CONFIG
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		Ollama: OllamaConfig{
			URL:               "http://127.0.0.1:11434",
			TimeoutSecs:       30,
			StreamTimeoutSecs: 60,
		},
		Browser: BrowserConfig{
			ControlURL:    "http://127.0.0.1:9222",
			EvalTimeoutMs: 10000,
			MaxParallel:   8,
		},
		Server: ServerConfig{
			Addr:      "127.0.0.1:8787",
			RateLimit: 10,
			RateBurst: 20,
		},
		Storage: StorageConfig{
			Backend:      "sqlite",
			Conversation: "default",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		UI: UIConfig{
			Theme:          "auto",
			RenderMarkdown: true,
			IncludePage:    true,
		},
	}
}

// OllamaTimeout returns the catalog request timeout.
func (c *Config) OllamaTimeout() time.Duration {
	return time.Duration(c.Ollama.TimeoutSecs) * time.Second
}

// OllamaStreamTimeout returns the generation header timeout.
func (c *Config) OllamaStreamTimeout() time.Duration {
	return time.Duration(c.Ollama.StreamTimeoutSecs) * time.Second
}

// EvalTimeout returns the in-page call timeout.
func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.Browser.EvalTimeoutMs) * time.Millisecond
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the tabchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".tabchat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the resolved storage directory.
func (c *Config) DataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return expandHome(c.Storage.DataDir)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

// LogFile returns the resolved log file path.
func (c *Config) LogFile() (string, error) {
	if c.Logging.File != "" {
		return expandHome(c.Logging.File)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs", "tabchat.log"), nil
}

// TelemetryDirPath returns the resolved telemetry output directory.
func (c *Config) TelemetryDirPath() (string, error) {
	if c.Logging.TelemetryDir != "" {
		return expandHome(c.Logging.TelemetryDir)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "telemetry"), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files may hold the server auth token and must be 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads ~/.tabchat/config.toml, or defaults when it does not exist.
// Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		cfg := Default()
		return finish(cfg)
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadTOML decodes path over cfg. Keys absent from the file keep cfg's values.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// Existing files keep their old mode on open
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# tabchat configuration file")
	fmt.Fprintln(file, "# Generated by tabchat - edit with care")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := validateHTTPURL(c.Ollama.URL); err != nil {
		errs = append(errs, ValidationError{Field: "ollama.url", Message: err.Error()})
	}
	if c.Ollama.TimeoutSecs < 0 || c.Ollama.TimeoutSecs > 600 {
		errs = append(errs, ValidationError{
			Field:   "ollama.timeout_secs",
			Message: fmt.Sprintf("must be between 0 and 600, got %d", c.Ollama.TimeoutSecs),
		})
	}
	if c.Ollama.StreamTimeoutSecs < 0 || c.Ollama.StreamTimeoutSecs > 3600 {
		errs = append(errs, ValidationError{
			Field:   "ollama.stream_timeout_secs",
			Message: fmt.Sprintf("must be between 0 and 3600, got %d", c.Ollama.StreamTimeoutSecs),
		})
	}

	if c.Browser.ControlURL != "" {
		if _, err := strconv.Atoi(c.Browser.ControlURL); err != nil {
			u, perr := url.Parse(c.Browser.ControlURL)
			if perr != nil || u.Host == "" {
				errs = append(errs, ValidationError{
					Field:   "browser.control_url",
					Message: fmt.Sprintf("invalid control URL '%s', expected ws://, http:// or a port", c.Browser.ControlURL),
				})
			}
		}
	}
	if c.Browser.EvalTimeoutMs < 0 {
		errs = append(errs, ValidationError{Field: "browser.eval_timeout_ms", Message: "must not be negative"})
	}
	if c.Browser.MaxParallel < 0 || c.Browser.MaxParallel > 64 {
		errs = append(errs, ValidationError{
			Field:   "browser.max_parallel",
			Message: fmt.Sprintf("must be between 0 and 64, got %d", c.Browser.MaxParallel),
		})
	}

	if _, _, err := splitHostPort(c.Server.Addr); err != nil {
		errs = append(errs, ValidationError{Field: "server.addr", Message: err.Error()})
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit", Message: "must not be negative"})
	}
	if c.Server.RateBurst < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_burst", Message: "must not be negative"})
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "sqlite", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: sqlite, json", c.Storage.Backend),
		})
	}
	if strings.ContainsAny(c.Storage.Conversation, `/\`) {
		errs = append(errs, ValidationError{Field: "storage.conversation", Message: "must not contain path separators"})
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	switch strings.ToLower(c.UI.Theme) {
	case "dark", "light", "auto":
	default:
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL '%s': %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL '%s', scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL '%s', missing host", raw)
	}
	return nil
}

func splitHostPort(addr string) (string, int, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", 0, fmt.Errorf("invalid address '%s', expected host:port", addr)
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in '%s'", addr)
	}
	return addr[:i], port, nil
}

// SetDefaults fills zero values that have a meaningful default.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = d.Ollama.URL
	}
	c.Ollama.URL = strings.TrimRight(c.Ollama.URL, "/")
	if c.Ollama.TimeoutSecs == 0 {
		c.Ollama.TimeoutSecs = d.Ollama.TimeoutSecs
	}
	if c.Ollama.StreamTimeoutSecs == 0 {
		c.Ollama.StreamTimeoutSecs = d.Ollama.StreamTimeoutSecs
	}
	if c.Browser.EvalTimeoutMs == 0 {
		c.Browser.EvalTimeoutMs = d.Browser.EvalTimeoutMs
	}
	if c.Browser.MaxParallel == 0 {
		c.Browser.MaxParallel = d.Browser.MaxParallel
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst == 0 {
		c.Server.RateBurst = int(c.Server.RateLimit*2) + 1
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Storage.Conversation == "" {
		c.Storage.Conversation = d.Storage.Conversation
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = d.Logging.MaxSizeMB
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - TABCHAT_OLLAMA_URL: overrides ollama.url
//   - TABCHAT_MODEL: overrides ollama.default_model
//   - TABCHAT_BROWSER_URL: overrides browser.control_url
//   - TABCHAT_ADDR: overrides server.addr
//   - TABCHAT_TOKEN: overrides server.auth_token
//   - TABCHAT_STORAGE: overrides storage.backend
//   - TABCHAT_DATA_DIR: overrides storage.data_dir
//   - TABCHAT_LOG_LEVEL: overrides logging.level
//   - TABCHAT_TELEMETRY: set to "1" or "true" to enable telemetry export
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TABCHAT_OLLAMA_URL"); v != "" {
		c.Ollama.URL = v
	}
	if v := os.Getenv("TABCHAT_MODEL"); v != "" {
		c.Ollama.DefaultModel = v
	}
	if v := os.Getenv("TABCHAT_BROWSER_URL"); v != "" {
		c.Browser.ControlURL = v
	}
	if v := os.Getenv("TABCHAT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TABCHAT_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("TABCHAT_STORAGE"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("TABCHAT_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("TABCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TABCHAT_TELEMETRY"); v != "" {
		c.Logging.Telemetry = v == "1" || strings.ToLower(v) == "true"
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "ollama.url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "ollama.url").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks key through the struct by TOML tag.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, strings.ReplaceAll(strings.ToLower(part), "-", "_"))
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tomlName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tomlName(f reflect.StructField) string {
	tag := f.Tag.Get("toml")
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return strings.ToLower(f.Name)
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		name := tomlName(section)
		if section.Type.Kind() != reflect.Struct {
			keys = append(keys, name)
			continue
		}
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, name+"."+tomlName(section.Type.Field(j)))
		}
	}
	return keys
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.AllowedOrigins != nil {
		clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	}
	return &clone
}

// String returns a string representation of the config for debugging.
// SECURITY: The auth token is redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Server.AuthToken != "" {
		safe.Server.AuthToken = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
