package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ligrlabs/crmsync/internal/pipedrive"
	"github.com/ligrlabs/crmsync/internal/transport"
	"github.com/ligrlabs/crmsync/pkg/logging"
)

var (
	configFile string

	live         bool
	baseURL      string
	requestDelay time.Duration
	outDir       string
	fieldsFile   string
	verbose      bool
	quiet        bool

	// Version information set by main.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// Date is the build date.
	Date = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "crmsync",
	Short: "Reconcile an authoritative dataset against a CRM",
	Long: `crmsync reconciles a periodic export of user and organization records
against a remote CRM's contacts and organizations.

The authoritative dataset always wins on identity and organization truth.
Runs are batch, sequential, and idempotent: a rerun against an
already-synced CRM performs zero writes. All decisions, no-ops included,
are written to a CSV audit log.

By default every run is a dry run; pass --live to apply changes.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		switch {
		case quiet:
			logging.SetLevel(zerolog.WarnLevel)
		case verbose:
			logging.SetLevel(zerolog.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(version, commit, date string) {
	Version = version
	Commit = commit
	Date = date

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is $HOME/.crmsync.yaml)")
	rootCmd.PersistentFlags().BoolVar(&live, "live", false, "Apply changes to the CRM (default is dry run)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", pipedrive.DefaultBaseURL, "CRM API base URL")
	rootCmd.PersistentFlags().DurationVar(&requestDelay, "request-delay", transport.DefaultDelay, "Minimum interval between API requests")
	rootCmd.PersistentFlags().StringVar(&outDir, "out-dir", ".", "Directory for audit log artifacts")
	rootCmd.PersistentFlags().StringVar(&fieldsFile, "fields", "", "YAML field specification file (default is the built-in field set)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Minimal output")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".crmsync")
	}

	// Load .env files first (before Viper env binding)
	loadEnvFiles()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err == nil {
		logging.Debug().Str("file", viper.ConfigFileUsed()).Msg("Using config file")
	}
}

// loadEnvFiles loads .env files from the working directory when present.
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
		}
	}
}
