package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "SPOOLWATCH"

	// ConfigName is the config file base name and app data dir name.
	ConfigName = "spoolwatch"
)

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// envAlias binds a short environment variable to a config path, in addition
// to the automatic SPOOLWATCH_<SECTION>_<KEY> name.
type envAlias struct {
	Name string
	Path string
}

// fullName is the automatic variable name for the alias path.
func (a envAlias) fullName() string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(a.Path, ".", "_"))
}

func getEnvAliases() []envAlias {
	short := []struct{ name, path string }{
		{"HOST", "server.host"},
		{"PORT", "server.port"},
		{"READ_TIMEOUT", "server.read_timeout"},
		{"WRITE_TIMEOUT", "server.write_timeout"},
		{"IDLE_TIMEOUT", "server.idle_timeout"},
		{"SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
		{"LOG_LEVEL", "logging.level"},
		{"LOG_PROFILE", "logging.profile"},
		{"METRICS_ENABLED", "metrics.enabled"},
		{"PROVIDER", "provider.kind"},
		{"FIXTURE", "provider.fixture"},
		{"INTERVAL", "monitor.interval"},
		{"HISTORY_PATH", "history.path"},
		{"REGISTRY_PATH", "registry.path"},
	}
	aliases := make([]envAlias, 0, len(short))
	for _, s := range short {
		aliases = append(aliases, envAlias{Name: EnvPrefix + "_" + s.name, Path: s.path})
	}
	return aliases
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("provider.kind", "fixture")
	v.SetDefault("provider.fixture", "")
	v.SetDefault("provider.simulate", "0s")
	v.SetDefault("provider.rate_limit", 0.0)
	v.SetDefault("provider.burst", 1)
	v.SetDefault("provider.cups.bin_dir", "")
	v.SetDefault("provider.cups.server", "")
	v.SetDefault("provider.cups.user", "")

	v.SetDefault("monitor.interval", "5s")
	v.SetDefault("monitor.stop_grace", "2s")
	v.SetDefault("monitor.read_error_policy", "retain_previous")
	v.SetDefault("monitor.watch_device", true)

	v.SetDefault("history.path", "")
	v.SetDefault("history.retention", "0s")
	v.SetDefault("registry.path", "")

	v.SetDefault("archive.region", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.profile", "")
	v.SetDefault("archive.force_path_style", false)
}

// Load resolves configuration into a new Config and makes it the value
// returned by GetConfig. Each override map is applied at the highest
// precedence, nested maps addressing nested keys.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, a := range getEnvAliases() {
		if err := v.BindEnv(a.Path, a.fullName(), a.Name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", a.Name, err)
		}
	}

	configFile, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	for _, o := range overrides {
		applyOverrides(v, "", o)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.ConfigFile = configFile

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = cfg
	configMu.Unlock()
	return cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func applyOverrides(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			applyOverrides(v, key, nested)
			continue
		}
		v.Set(key, val)
	}
}

// readConfigFile reads SPOOLWATCH_CONFIG if set, else the first
// spoolwatch.{yaml,yml,json} found in the search paths. A missing file is
// not an error.
func readConfigFile(v *viper.Viper) (string, error) {
	if explicit := strings.TrimSpace(os.Getenv(EnvPrefix + "_CONFIG")); explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return "", fmt.Errorf("read config %s: %w", explicit, err)
		}
		return v.ConfigFileUsed(), nil
	}

	v.SetConfigName(ConfigName)
	for _, p := range getUserConfigPaths() {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("read config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

func getUserConfigPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, ConfigName))
	}
	paths = append(paths, filepath.Join("/etc", ConfigName), ".")
	return paths
}
