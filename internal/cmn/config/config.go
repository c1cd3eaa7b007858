// Package config loads the scheduler's process configuration from a YAML
// file, environment variables, and an optional .env file, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix namespaces the environment variables (SM_DEBUG and so on).
const envPrefix = "SM"

// Paths groups the directories and files the scheduler persists into.
type Paths struct {
	// DataDir is the root for all durable state.
	DataDir string `mapstructure:"dataDir"`

	// StateDir holds the per-destination state snapshots.
	StateDir string `mapstructure:"stateDir"`

	// RegistryFile is the process-wide variable registry document.
	RegistryFile string `mapstructure:"registryFile"`

	// SchedulesDir is watched for schedule documents to validate.
	SchedulesDir string `mapstructure:"schedulesDir"`

	// LogDir receives the daemon log files.
	LogDir string `mapstructure:"logDir"`
}

// Collaborators holds the endpoints of the external services. Any empty
// endpoint degrades to a no-op collaborator.
type Collaborators struct {
	PublishURL  string        `mapstructure:"publishUrl"`
	GenerateURL string        `mapstructure:"generateUrl"`
	AnimateURL  string        `mapstructure:"animateUrl"`
	DisplayURL  string        `mapstructure:"displayUrl"`
	DeviceURL   string        `mapstructure:"deviceUrl"`
	ReasonURL   string        `mapstructure:"reasonUrl"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Config is the full process configuration.
type Config struct {
	Paths         Paths         `mapstructure:"paths"`
	Collaborators Collaborators `mapstructure:"collaborators"`

	// Destinations lists every destination this process schedules for.
	Destinations []string `mapstructure:"destinations"`

	// Groups maps group names to member destinations.
	Groups map[string][]string `mapstructure:"groups"`

	// TickInterval is the trigger evaluation cadence.
	TickInterval time.Duration `mapstructure:"tickInterval"`

	// EventSweepInterval is how often expired events are swept to history.
	EventSweepInterval time.Duration `mapstructure:"eventSweepInterval"`

	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"logFormat"`
	Quiet     bool   `mapstructure:"quiet"`
}

// DestinationsOf returns the members of a group, or nil when the name is
// not a group.
func (c *Config) DestinationsOf(group string) []string {
	return c.Groups[group]
}

// AllDestinations returns every configured destination, including group
// members not listed at the top level, sorted and deduplicated.
func (c *Config) AllDestinations() []string {
	seen := map[string]struct{}{}
	for _, d := range c.Destinations {
		seen[d] = struct{}{}
	}
	for _, members := range c.Groups {
		for _, d := range members {
			seen[d] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Load reads the configuration. An empty file argument searches the XDG
// config home and the working directory for screen-machine.yaml; a missing
// file there is fine and yields the defaults.
func Load(file string) (*Config, error) {
	// .env values become process env before viper binds them.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dataDir := filepath.Join(xdg.DataHome, "screen-machine")
	v.SetDefault("paths.dataDir", dataDir)
	v.SetDefault("paths.stateDir", filepath.Join(dataDir, "state"))
	v.SetDefault("paths.registryFile", filepath.Join(dataDir, "registry.json"))
	v.SetDefault("paths.schedulesDir", filepath.Join(dataDir, "schedules"))
	v.SetDefault("paths.logDir", filepath.Join(dataDir, "logs"))
	v.SetDefault("collaborators.timeout", 30*time.Second)
	v.SetDefault("tickInterval", 2*time.Second)
	v.SetDefault("eventSweepInterval", 30*time.Second)
	v.SetDefault("logFormat", "text")
	// Keys need a registered default for AutomaticEnv to reach Unmarshal.
	v.SetDefault("debug", false)
	v.SetDefault("quiet", false)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("screen-machine")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, "screen-machine"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
