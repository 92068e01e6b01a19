// Package cmd implements the spoolwatch command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/internal/config"
	"github.com/3leaps/spoolwatch/internal/observability"
)

// AppIdentity names the binary and its config conventions.
type AppIdentity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

var (
	versionInfo = struct {
		Version   string
		Commit    string
		BuildDate string
	}{
		Version:   "dev",
		Commit:    "unknown",
		BuildDate: "unknown",
	}

	appIdentity *AppIdentity
	appConfig   *config.Config

	cfgFile      string
	verbose      bool
	readOnly     bool
	providerKind string
	fixturePath  string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "spoolwatch",
	Short: "Query, control and watch print spooler queues",
	Long: `spoolwatch reads print spooler state, controls devices and jobs, and
watches queues for job and device lifecycle changes.

Events are written as JSONL records and can be kept in a local history
database for later query and export.

Examples:
  spoolwatch devices
  spoolwatch jobs list Office-Laser
  spoolwatch watch Office-Laser --jobs 5,7 --history events.db
  spoolwatch serve --port 8080`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRoot,
}

// SetVersionInfo records build metadata. Call before Execute.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity set by the root command, or nil
// before it runs.
func GetAppIdentity() *AppIdentity {
	return appIdentity
}

// Execute runs the root command and exits with the mapped code on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		code := 1
		var ee *cliExitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		observability.CLILogger.Error("Command failed", zap.Error(err))
		observability.Sync()
		os.Exit(code)
	}
	observability.Sync()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/spoolwatch/spoolwatch.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&readOnly, "readonly", false, "Refuse commands that change device or job state")
	rootCmd.PersistentFlags().StringVar(&providerKind, "provider", "", "Spooler provider (fixture|cups)")
	rootCmd.PersistentFlags().StringVar(&fixturePath, "fixture", "", "Fixture state file for the fixture provider")

	_ = viper.BindPFlag("readonly", rootCmd.PersistentFlags().Lookup("readonly"))
	_ = viper.BindPFlag("provider.kind", rootCmd.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("provider.fixture", rootCmd.PersistentFlags().Lookup("fixture"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	setDefaults()
}

// setDefaults installs config defaults on the global viper instance used
// for flag binding.
func setDefaults() {
	config.SetDefaults(viper.GetViper())
	viper.SetDefault("readonly", false)
}

func initRoot(cmd *cobra.Command, _ []string) error {
	appIdentity = &AppIdentity{
		BinaryName: "spoolwatch",
		EnvPrefix:  config.EnvPrefix,
		ConfigName: config.ConfigName,
	}
	observability.InitCLILogger(appIdentity.BinaryName, verbose)

	if cfgFile != "" {
		if err := os.Setenv(config.EnvPrefix+"_CONFIG", cfgFile); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --config", err)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(ctx, flagOverrides(cmd))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	appConfig = cfg

	observability.CLILogger.Debug("Configuration loaded",
		zap.String("config_file", cfg.ConfigFile),
		zap.String("provider", cfg.Provider.Kind),
		zap.Bool("readonly", isReadOnly()))
	return nil
}

// flagOverrides returns explicitly set persistent flags as config overrides.
func flagOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	provider := map[string]any{}
	flags := cmd.Flags()
	if flags.Changed("provider") {
		provider["kind"] = strings.ToLower(providerKind)
	}
	if flags.Changed("fixture") {
		provider["fixture"] = fixturePath
		if !flags.Changed("provider") {
			provider["kind"] = "fixture"
		}
	}
	if len(provider) > 0 {
		overrides["provider"] = provider
	}
	if flags.Changed("log-level") {
		overrides["logging"] = map[string]any{"level": logLevel}
	}
	return overrides
}

func currentConfig() *config.Config {
	if appConfig != nil {
		return appConfig
	}
	if cfg := config.GetConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.Load(context.Background())
	if err != nil {
		observability.CLILogger.Warn("Falling back to default configuration", zap.Error(err))
		cfg = &config.Config{}
	}
	appConfig = cfg
	return cfg
}

func isReadOnly() bool {
	return readOnly || viper.GetBool("readonly")
}

// requireWritable rejects state-changing commands under --readonly.
func requireWritable(op string) error {
	if isReadOnly() {
		return exitError(foundry.ExitInvalidArgument,
			fmt.Sprintf("%s is not allowed in readonly mode", op),
			errors.New("readonly mode is enabled"))
	}
	return nil
}

type cliExitError struct {
	code int
	msg  string
	err  error
}

func (e *cliExitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s (exit code %d)", e.msg, e.code)
	}
	return fmt.Sprintf("%s (exit code %d): %v", e.msg, e.code, e.err)
}

func (e *cliExitError) Unwrap() error { return e.err }

// exitError attaches a process exit code to err.
func exitError(code int, msg string, err error) error {
	return &cliExitError{code: code, msg: msg, err: err}
}

// ExitWithCode logs msg and err and terminates the process.
func ExitWithCode(logger *zap.Logger, code int, msg string, err error) {
	if logger == nil {
		logger = observability.CLILogger
	}
	logger.Error(msg, zap.Int("exit_code", code), zap.Error(err))
	observability.Sync()
	os.Exit(code)
}
