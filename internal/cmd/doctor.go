package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/spoolwatch/internal/errors"
	"github.com/3leaps/spoolwatch/internal/observability"
)

var (
	doctorArchive string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the system and suggest fixes for common issues.

Examples:
  spoolwatch doctor                # Environment, provider and history checks
  spoolwatch doctor --archive s3   # Also check AWS credentials for event export`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorArchive, "archive", "", "Run archive-specific checks (s3)")
}

func runDoctor(cmd *cobra.Command, args []string) {
	identity := GetAppIdentity()
	bannerName := "doctor"
	if identity != nil && identity.BinaryName != "" {
		bannerName = identity.BinaryName + " doctor"
	}
	log := observability.CLILogger
	log.Info("=== " + bannerName + " ===")
	log.Info("")
	log.Info("Running diagnostic checks...")
	log.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 7
	if doctorArchive == "s3" {
		totalChecks = 9
	}

	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		log.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		log.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	version := crucible.GetVersion()
	if version.Crucible != "" {
		log.Info(fmt.Sprintf("[%d/%d] Checking Crucible access... ✅ v%s", checkNum, totalChecks, version.Crucible),
			zap.String("crucible_version", version.Crucible))
	} else {
		log.Error(fmt.Sprintf("[%d/%d] Checking Crucible access... ❌ Cannot access Crucible", checkNum, totalChecks))
		ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Cannot access Crucible",
			apperrors.NewExternalServiceError("Crucible service unavailable"))
		allChecks = false
	}
	checkNum++

	if version.Gofulmen != "" {
		log.Info(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ✅ v%s", checkNum, totalChecks, version.Gofulmen),
			zap.String("gofulmen_version", version.Gofulmen))
	} else {
		log.Error(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ❌ Cannot access Gofulmen", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	cfg := currentConfig()
	if cfg.ConfigFile != "" {
		log.Info(fmt.Sprintf("[%d/%d] Checking configuration... ✅ %s", checkNum, totalChecks, cfg.ConfigFile),
			zap.String("config_file", cfg.ConfigFile))
	} else if configDir, err := os.UserConfigDir(); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking configuration... ❌ Cannot find config directory", checkNum, totalChecks),
			zap.Error(err))
		allChecks = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking configuration... ✅ defaults (no file under %s)", checkNum, totalChecks, configDir),
			zap.String("config_dir", configDir))
	}
	checkNum++

	log.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	if !checkProvider(cmd.Context(), checkNum, totalChecks, cfg.Provider.Kind) {
		allChecks = false
	}
	checkNum++

	if !checkHistory(cmd.Context(), checkNum, totalChecks) {
		allChecks = false
	}
	checkNum++

	if doctorArchive == "s3" {
		allChecks = runS3Checks(cmd.Context(), checkNum, totalChecks, allChecks)
	}

	log.Info("")
	if allChecks {
		log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("")
	log.Info("=== End Diagnostics ===")
}

func checkProvider(ctx context.Context, checkNum, totalChecks int, kind string) bool {
	svc, cleanup, err := newQueryService(ctx)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking %s provider... ❌ Cannot create provider", checkNum, totalChecks, kind),
			zap.Error(err))
		return false
	}
	defer cleanup()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	start := time.Now()
	if err := svc.Ping(pingCtx); err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking %s provider... ❌ Unreachable", checkNum, totalChecks, kind),
			zap.Error(err))
		return false
	}
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking %s provider... ✅ reachable", checkNum, totalChecks, kind),
		zap.Duration("took", time.Since(start)))
	return true
}

func checkHistory(ctx context.Context, checkNum, totalChecks int) bool {
	path, err := historyPath("")
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking history database... ❌ No location", checkNum, totalChecks),
			zap.Error(err))
		return false
	}
	store, err := openHistory(ctx, path)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking history database... ❌ Cannot open %s", checkNum, totalChecks, path),
			zap.Error(err))
		return false
	}
	defer func() { _ = store.Close() }()
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking history database... ✅ %s", checkNum, totalChecks, path),
		zap.String("history_path", path))
	return true
}

// runS3Checks verifies that event export to S3 can find credentials.
func runS3Checks(ctx context.Context, checkNum, totalChecks int, allChecks bool) bool {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("S3 Archive Checks:")

	ac := currentConfig().Archive
	var opts []func(*awsconfig.LoadOptions) error
	if ac.Region != "" {
		opts = append(opts, awsconfig.WithRegion(ac.Region))
	}
	if ac.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(ac.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot load AWS config", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot retrieve credentials", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking AWS credentials... ✅ Found credentials", checkNum, totalChecks),
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("source", creds.Source))
	checkNum++

	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking credential source... ✅ %s", checkNum, totalChecks, source),
		zap.String("credential_source", source))

	return allChecks
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printAWSCredentialsHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure AWS credentials for event export:")
	observability.CLILogger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or")
	observability.CLILogger.Info("  2. Set SPOOLWATCH_S3_ACCESS_KEY_ID and SPOOLWATCH_S3_SECRET_ACCESS_KEY, or")
	observability.CLILogger.Info("  3. Run 'aws configure' and set archive.profile in the config file")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("For S3-compatible storage (MinIO, Wasabi, etc.), also set:")
	observability.CLILogger.Info("  - archive.endpoint in the config file or --endpoint on 'events export'")
	observability.CLILogger.Info("")
}
