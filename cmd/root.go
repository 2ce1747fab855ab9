// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package cmd wires the connector's CLI: a root command carrying the
// console connection settings, a sync command running the full ingestion,
// and a validate command checking connectivity and credentials.
package cmd

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bonial-oss/insightvm-graph-connector/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

// envPrefix maps flags onto environment variables, e.g. --host onto
// INSIGHTVM_HOST and --disable-tls-verification onto
// INSIGHTVM_DISABLE_TLS_VERIFICATION.
const envPrefix = "INSIGHTVM"

// ExitError signals a non-zero exit code with an optional message.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

// NewRootCommand creates the root cobra command with all subcommands.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "insightvm-connector",
		Short:   "Ingest a Rapid7 InsightVM console into a graph of assets, findings, and vulnerabilities",
		Version: Version,
		Long: `insightvm-connector walks the InsightVM API v3 of a Security Console and
projects its users, sites, scans, assets, and vulnerability findings into a
graph of typed entities and relationships.

Connection settings can be given as flags or environment variables:

  insightvm-connector sync --host insight.example.com --username admin --password ...
  INSIGHTVM_HOST=insight.example.com INSIGHTVM_USERNAME=admin INSIGHTVM_PASSWORD=... insightvm-connector sync`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initializeConfig(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("host", "", "Hostname of the InsightVM Security Console")
	flags.String("username", "", "Console API username")
	flags.String("password", "", "Console API password")
	flags.Bool("disable-tls-verification", false, "Skip TLS certificate verification for the console")
	flags.StringP("log-level", "l", "info", "Log level: debug, info, warn, error")

	cmd.AddCommand(newSyncCommand())
	cmd.AddCommand(newValidateCommand())

	return cmd
}

// initializeConfig binds environment variables onto unset flags and
// configures the logger. Flags given explicitly win over the environment.
func initializeConfig(cmd *cobra.Command) error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	bindFlags(cmd)

	level, _ := cmd.Flags().GetString("log-level")
	initLogger(parseLogLevel(level))
	return nil
}

// bindFlags sets every unset flag from its viper-resolved value, so
// INSIGHTVM_PASSWORD works the same as --password.
func bindFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed && viper.IsSet(f.Name) {
			_ = cmd.Flags().Set(f.Name, viper.GetString(f.Name))
		}
	})
}

// initLogger installs a tint handler writing to stderr, so log output never
// mixes with the summary or JSON export on stdout.
func initLogger(level slog.Leveler) {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}),
	))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// configFromFlags assembles and validates the connector config from the
// resolved flag values.
func configFromFlags(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	cfg := &config.Config{}
	cfg.Host, _ = flags.GetString("host")
	cfg.Username, _ = flags.GetString("username")
	cfg.Password, _ = flags.GetString("password")
	cfg.DisableTLSVerification, _ = flags.GetBool("disable-tls-verification")

	if flags.Lookup("vulnerability-severities") != nil {
		cfg.VulnerabilitySeverities, _ = flags.GetString("vulnerability-severities")
	}
	if flags.Lookup("vulnerability-states") != nil {
		cfg.VulnerabilityStates, _ = flags.GetString("vulnerability-states")
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, nil
}
