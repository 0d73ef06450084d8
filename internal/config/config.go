package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the updater commands.
type Config struct {
	// BusAddress is the D-Bus address to use; empty or "session" selects the session bus.
	BusAddress string `yaml:"bus_address" env:"BUS_ADDRESS, overwrite"`
	// AppID is the Flatpak application ID to check and update.
	AppID string `yaml:"app_id" env:"APP_ID, overwrite"`
	// InstalledVersion is the version of the running app, compared with Flathub releases.
	InstalledVersion string `yaml:"installed_version" env:"INSTALLED_VERSION, overwrite"`
	// FlathubURL is the base URL of the Flathub appstream API.
	FlathubURL string `yaml:"flathub_url" env:"FLATHUB_URL, overwrite"`
	// Timeout bounds single portal calls and HTTP requests.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT, overwrite"`
	// CheckInterval is the period between Flathub checks in the watcher.
	CheckInterval time.Duration `yaml:"check_interval" env:"CHECK_INTERVAL, overwrite"`
	// CheckDelay postpones the first Flathub check after start.
	CheckDelay time.Duration `yaml:"check_delay" env:"CHECK_DELAY, overwrite"`
	// StateFile is the path to the JSON file storing the watcher status.
	StateFile string `yaml:"state_file" env:"STATE_FILE, overwrite"`
	// ListenAddress is the TCP address the watcher serves its status API on.
	ListenAddress string `yaml:"listen_address" env:"LISTEN_ADDRESS, overwrite"`
	// ParentWindow identifies the window used for portal dialogs.
	ParentWindow string `yaml:"parent_window" env:"PARENT_WINDOW, overwrite"`
	// AutoUpdate makes the watcher install updates as soon as they are announced.
	AutoUpdate bool `yaml:"auto_update" env:"AUTO_UPDATE, overwrite"`
	// AutoRestart makes the watcher restart into the new version after installation.
	AutoRestart bool `yaml:"auto_restart" env:"AUTO_RESTART, overwrite"`
	// RestartArgv is the command line of the app started by restart and update --restart.
	RestartArgv []string `yaml:"restart_argv,omitempty" env:"RESTART_ARGV, overwrite"`
}

const (
	// DefaultConfigFilename is the default filename for updater settings.
	DefaultConfigFilename = "flatpak-updater.yaml"

	// DefaultStateFilename is the default filename for the watcher status JSON.
	DefaultStateFilename = "flatpak-updater-state.json"

	// DefaultFlathubURL is the Flathub appstream endpoint; the app ID is appended.
	DefaultFlathubURL = "https://flathub.org/api/v2/appstream/"

	// DefaultListenAddress is where the watcher serves its status API.
	DefaultListenAddress = "127.0.0.1:50731"

	// DefaultParentWindow is passed to the portal when no window is known.
	DefaultParentWindow = "x11:0"

	// DefaultTimeout is the default duration for portal calls and HTTP requests.
	DefaultTimeout = 10 * time.Second

	// DefaultCheckInterval is the default period between Flathub checks.
	DefaultCheckInterval = 6 * time.Hour

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600

	// SessionBus selects the session bus in BusAddress.
	SessionBus = "session"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "FLATPAK_UPDATER_"

	// flatpakIDVariable is set by Flatpak inside the sandbox.
	flatpakIDVariable = "FLATPAK_ID"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNegativeDuration is returned for negative intervals.
	errNegativeDuration = errors.New("duration must not be negative")
)

// Default returns a configuration populated with defaults only.
func Default() *Config {
	cfg := new(Config)

	//nolint:errcheck // Defaults always validate.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path, applies environment
// overrides and validates it. A missing file at the default path yields
// the defaults; a missing file at any other path is an error.
func Load(path string) (*Config, error) {
	return LoadWithLookuper(path, envconfig.OsLookuper())
}

// LoadWithLookuper is Load with a custom environment source.
func LoadWithLookuper(path string, lookuper envconfig.Lookuper) (*Config, error) {
	explicit := path != "" && path != DefaultConfigFilename
	if !explicit {
		path = DefaultConfigFilename
	}

	var cfg Config

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// Fall through to environment and defaults.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = applyEnvironment(&cfg, lookuper); err != nil {
		return nil, err
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvironment overrides fields from FLATPAK_UPDATER_* variables and
// fills AppID from FLATPAK_ID when it is still empty.
func applyEnvironment(cfg *Config, lookuper envconfig.Lookuper) error {
	if err := envconfig.ProcessWith(context.Background(), cfg, envconfig.PrefixLookuper(EnvPrefix, lookuper)); err != nil {
		return fmt.Errorf("process environment: %w", err)
	}

	if cfg.AppID == "" {
		if id, ok := lookuper.Lookup(flatpakIDVariable); ok {
			cfg.AppID = strings.TrimSpace(id)
		}
	}

	return nil
}

// Save writes cfg to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks formatting and fills defaults for empty fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.BusAddress == "" {
		cfg.BusAddress = SessionBus
	}

	if cfg.FlathubURL == "" {
		cfg.FlathubURL = DefaultFlathubURL
	}

	if _, err := url.ParseRequestURI(cfg.FlathubURL); err != nil {
		return fmt.Errorf("invalid flathub URL: %w", err)
	}

	if cfg.Timeout < 0 || cfg.CheckInterval < 0 || cfg.CheckDelay < 0 {
		return errNegativeDuration
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}

	if cfg.StateFile == "" {
		cfg.StateFile = DefaultStateFilename
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if strings.TrimSpace(cfg.ParentWindow) == "" {
		cfg.ParentWindow = DefaultParentWindow
	}

	return nil
}
