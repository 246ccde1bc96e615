package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/s3conn/internal/config"
	"github.com/s3conn/internal/logger"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var (
	configPath string
	logLevel   string

	// cfg is loaded once per invocation before any subcommand runs.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "s3conn",
	Short: "S3 connection, signing and retry engine",
	Long: `s3conn talks to S3-compatible object storage over one or more
keep-alive connections. Requests are signed with AWS V4 (or the legacy V2
scheme), redirects are followed and failures are retried.

Get started:
  s3conn request GET /key      Send one request and print the response
  s3conn get key1 key2         Fetch several objects through the pool
  s3conn sign GET /key         Print the Authorization header
  s3conn history               Show recent requests
  s3conn probe                 Check that the bucket is reachable`,
	Version:       fmt.Sprintf("%s (built %s)", version, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") || c.Log.Level == "" {
			c.Log.Level = logLevel
		}
		if err := logger.Init(c.Log.Level, c.Log.File); err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, paint(ErrorStyle, CrossMark+" "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error, crit)")
}

// SetVersion sets the version info
func SetVersion(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", version, buildTime, gitCommit)
}

// SetGitCommit sets the git commit hash
func SetGitCommit(commit string) {
	gitCommit = commit
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", version, buildTime, gitCommit)
}
