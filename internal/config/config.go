package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the per-project configuration file searched from the working
// directory up to the filesystem root.
const FileName = ".runbox.toml"

// Config holds the client settings. Every field is optional; the Get*
// helpers supply defaults.
type Config struct {
	ServerURL   *string  `toml:"server_url,omitempty"`
	SocketPath  *string  `toml:"socket_path,omitempty"`
	Transport   *string  `toml:"transport,omitempty"`
	Language    *string  `toml:"language,omitempty"`
	Languages   []string `toml:"languages,omitempty"`
	Embedded    *bool    `toml:"embedded,omitempty"`
	RuntimeArgs *string  `toml:"runtime_args,omitempty"`
	PageURL     *string  `toml:"page_url,omitempty"`
	ResizeDelay *string  `toml:"resize_delay,omitempty"`
	RunTimeout  *string  `toml:"run_timeout,omitempty"`
	LogFile     *string  `toml:"log_file,omitempty"`
	LogLevel    *string  `toml:"log_level,omitempty"`

	Flags *FlagsConfig `toml:"flags,omitempty"`

	// key -> file that set it
	sources map[string]string
}

// FlagsConfig describes the compiler option panel. Controls keep file order.
type FlagsConfig struct {
	Controls []FlagControl `toml:"control"`
}

// FlagControl is one panel control. Kind is "select" or "toggle".
type FlagControl struct {
	Kind    string   `toml:"kind"`
	Name    string   `toml:"name"`
	Value   string   `toml:"value,omitempty"`
	Options []string `toml:"options,omitempty"`
	// Checked applies to toggles; a select always contributes its value.
	Checked bool `toml:"checked,omitempty"`
}

const (
	defaultServerURL     = "http://localhost:3000"
	defaultSocketPath    = "/socket.io/"
	defaultWebSocketPath = "/run"
	defaultTransport     = "socketio"
	defaultLanguage      = "c"
	defaultResizeDelay   = 300 * time.Millisecond
	defaultLogLevel      = "info"
)

var defaultLanguages = []string{"c", "c++"}

func (c *Config) GetServerURL() string {
	if c == nil || c.ServerURL == nil {
		return defaultServerURL
	}
	return *c.ServerURL
}

// GetSocketPath returns the endpoint path; the default depends on the
// transport.
func (c *Config) GetSocketPath() string {
	if c == nil || c.SocketPath == nil {
		switch strings.ToLower(c.GetTransport()) {
		case "websocket", "ws":
			return defaultWebSocketPath
		}
		return defaultSocketPath
	}
	return *c.SocketPath
}

func (c *Config) GetTransport() string {
	if c == nil || c.Transport == nil {
		return defaultTransport
	}
	return *c.Transport
}

func (c *Config) GetLanguage() string {
	if c == nil || c.Language == nil {
		return defaultLanguage
	}
	return *c.Language
}

// GetLanguages returns the selectable languages, always including the
// configured default language.
func (c *Config) GetLanguages() []string {
	var langs []string
	if c != nil && len(c.Languages) > 0 {
		langs = append(langs, c.Languages...)
	} else {
		langs = append(langs, defaultLanguages...)
	}
	current := c.GetLanguage()
	for _, l := range langs {
		if l == current {
			return langs
		}
	}
	return append([]string{current}, langs...)
}

func (c *Config) GetEmbedded() bool {
	if c == nil || c.Embedded == nil {
		return false
	}
	return *c.Embedded
}

func (c *Config) GetRuntimeArgs() string {
	if c == nil || c.RuntimeArgs == nil {
		return ""
	}
	return *c.RuntimeArgs
}

// GetPageURL returns the page the embedded view was opened from, or the
// server URL with an /embed path.
func (c *Config) GetPageURL() string {
	if c == nil || c.PageURL == nil {
		return strings.TrimRight(c.GetServerURL(), "/") + "/embed"
	}
	return *c.PageURL
}

func (c *Config) GetResizeDelay() time.Duration {
	if c == nil || c.ResizeDelay == nil {
		return defaultResizeDelay
	}
	d, err := time.ParseDuration(*c.ResizeDelay)
	if err != nil || d < 0 {
		return defaultResizeDelay
	}
	return d
}

// GetRunTimeout returns zero (no timeout) unless run_timeout is set.
func (c *Config) GetRunTimeout() time.Duration {
	if c == nil || c.RunTimeout == nil {
		return 0
	}
	d, err := time.ParseDuration(*c.RunTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func (c *Config) GetLogFile() string {
	if c == nil || c.LogFile == nil {
		return defaultLogFile()
	}
	return *c.LogFile
}

func (c *Config) GetLogLevel() string {
	if c == nil || c.LogLevel == nil {
		return defaultLogLevel
	}
	return *c.LogLevel
}

// GetFlagControls returns the configured panel, or nil when the default
// panel should be used.
func (c *Config) GetFlagControls() []FlagControl {
	if c == nil || c.Flags == nil {
		return nil
	}
	return c.Flags.Controls
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.ResizeDelay != nil {
		if _, err := time.ParseDuration(*c.ResizeDelay); err != nil {
			return fmt.Errorf("resize_delay: %w", err)
		}
	}
	if c.RunTimeout != nil {
		if _, err := time.ParseDuration(*c.RunTimeout); err != nil {
			return fmt.Errorf("run_timeout: %w", err)
		}
	}
	switch strings.ToLower(c.GetTransport()) {
	case "socketio", "socket.io", "websocket", "ws":
	default:
		return fmt.Errorf("transport: unknown value %q", c.GetTransport())
	}
	for i, ctl := range c.GetFlagControls() {
		switch ctl.Kind {
		case "select":
			if len(ctl.Options) == 0 {
				return fmt.Errorf("flags.control[%d] %q: select needs options", i, ctl.Name)
			}
		case "toggle":
			if ctl.Value == "" {
				return fmt.Errorf("flags.control[%d] %q: toggle needs a value", i, ctl.Name)
			}
		default:
			return fmt.Errorf("flags.control[%d] %q: unknown kind %q", i, ctl.Name, ctl.Kind)
		}
	}
	return nil
}

// Sources returns the file each explicitly set key came from.
func (c *Config) Sources() map[string]string {
	out := make(map[string]string, len(c.sources))
	for k, v := range c.sources {
		out[k] = v
	}
	return out
}

func defaultLogFile() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "runbox", "runbox.log")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "runbox.log")
	}
	return filepath.Join(home, ".local", "state", "runbox", "runbox.log")
}

// UserConfigPath returns ~/.config/runbox/config.toml.
func UserConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "runbox", "config.toml"), nil
}

// Load reads the configuration chain starting at the working directory.
func Load() (*Config, error) {
	return LoadWithSources()
}

// LoadWithSources reads the user config, then every .runbox.toml from the
// filesystem root down to the working directory. Files closer to the working
// directory override earlier ones.
func LoadWithSources() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	var paths []string
	if user, err := UserConfigPath(); err == nil {
		paths = append(paths, user)
	}
	paths = append(paths, projectPaths(cwd)...)
	return LoadFiles(paths...)
}

// LoadFiles merges the given files in order; missing files are skipped.
func LoadFiles(paths ...string) (*Config, error) {
	cfg := &Config{sources: make(map[string]string)}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		var layer Config
		md, err := toml.Decode(string(data), &layer)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		for _, key := range md.Undecoded() {
			return nil, fmt.Errorf("%s: unknown key %q", path, key.String())
		}
		cfg.Merge(&layer, path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// projectPaths lists candidate project files, root first.
func projectPaths(dir string) []string {
	var paths []string
	for {
		paths = append(paths, filepath.Join(dir, FileName))
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
		paths[i], paths[j] = paths[j], paths[i]
	}
	return paths
}

// Merge overlays the fields o sets, recording source as their origin. The
// command line uses it to apply flags on top of the files.
func (c *Config) Merge(o *Config, source string) {
	if c.sources == nil {
		c.sources = make(map[string]string)
	}
	setString := func(key string, dst **string, src *string) {
		if src != nil {
			*dst = src
			c.sources[key] = source
		}
	}
	setString("server_url", &c.ServerURL, o.ServerURL)
	setString("socket_path", &c.SocketPath, o.SocketPath)
	setString("transport", &c.Transport, o.Transport)
	setString("language", &c.Language, o.Language)
	setString("runtime_args", &c.RuntimeArgs, o.RuntimeArgs)
	setString("page_url", &c.PageURL, o.PageURL)
	setString("resize_delay", &c.ResizeDelay, o.ResizeDelay)
	setString("run_timeout", &c.RunTimeout, o.RunTimeout)
	setString("log_file", &c.LogFile, o.LogFile)
	setString("log_level", &c.LogLevel, o.LogLevel)

	if o.Embedded != nil {
		c.Embedded = o.Embedded
		c.sources["embedded"] = source
	}
	if len(o.Languages) > 0 {
		c.Languages = o.Languages
		c.sources["languages"] = source
	}
	if o.Flags != nil {
		c.Flags = o.Flags
		c.sources["flags"] = source
	}
}

// DisplaySettingsWithSources renders the effective settings and where each
// came from.
func (c *Config) DisplaySettingsWithSources() string {
	var b strings.Builder
	b.WriteString("# runbox effective settings\n\n")

	line := func(key string, value any) {
		src := c.sources[key]
		if src == "" {
			src = "default"
		}
		fmt.Fprintf(&b, "%-13s = %-32v # %s\n", key, formatValue(value), src)
	}
	line("server_url", c.GetServerURL())
	line("transport", c.GetTransport())
	line("socket_path", c.GetSocketPath())
	line("language", c.GetLanguage())
	line("languages", c.GetLanguages())
	line("embedded", c.GetEmbedded())
	line("runtime_args", c.GetRuntimeArgs())
	line("page_url", c.GetPageURL())
	line("resize_delay", c.GetResizeDelay().String())
	line("run_timeout", c.GetRunTimeout().String())
	line("log_file", c.GetLogFile())
	line("log_level", c.GetLogLevel())

	controls := c.GetFlagControls()
	if len(controls) == 0 {
		b.WriteString("\n# flags: built-in panel\n")
		return b.String()
	}
	fmt.Fprintf(&b, "\n# flags (%s)\n", c.sources["flags"])
	for _, ctl := range controls {
		switch ctl.Kind {
		case "select":
			fmt.Fprintf(&b, "select %-10s %s (default %s)\n", ctl.Name, strings.Join(ctl.Options, " | "), ctl.Value)
		default:
			fmt.Fprintf(&b, "toggle %-10s %s checked=%t\n", ctl.Name, ctl.Value, ctl.Checked)
		}
	}
	return b.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	case []string:
		quoted := make([]string, len(val))
		for i, s := range val {
			quoted[i] = fmt.Sprintf("%q", s)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	default:
		return fmt.Sprint(val)
	}
}

// SourceFiles returns the distinct files that contributed settings.
func (c *Config) SourceFiles() []string {
	seen := make(map[string]bool)
	var files []string
	for _, f := range c.sources {
		if !seen[f] {
			seen[f] = true
			files = append(files, f)
		}
	}
	sort.Strings(files)
	return files
}
