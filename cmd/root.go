package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orchestrall-backup/internal/backup"
	"orchestrall-backup/internal/config"
	"orchestrall-backup/internal/datastore"
	"orchestrall-backup/internal/logging"
)

var cfgFile string

// CLI flag variables
var (
	basePath    string
	databaseDSN string
	verbose     bool
	quiet       bool
	logFile     string
	jsonOutput  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "orchestrall-backup",
	Short: "Backup and recovery engine for multi-tenant relational datasets",
	Long: `orchestrall-backup creates, verifies, restores, and prunes backups of a
multi-tenant relational dataset.

Backups come in three flavors: full (schema snapshot plus every table),
incremental (rows modified since the last completed backup), and tenant
(one organization's rows across the tenant-scoped tables). Every backup
carries a SHA-256 manifest; restores verify the manifest before writing
a single row.

Examples:
  # Create a full backup
  orchestrall-backup backup full --config config.yaml

  # Create an incremental backup
  orchestrall-backup backup incremental

  # Back up a single tenant
  orchestrall-backup backup tenant --tenant org-42

  # Restore a backup, clearing existing rows first
  orchestrall-backup restore full-20260827-120000-a1b2c3d4 --clear-existing

  # List backups and prune expired ones
  orchestrall-backup list
  orchestrall-backup sweep

  # Run the scheduler daemon
  orchestrall-backup schedule`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.orchestrall-backup.yaml)")
	rootCmd.PersistentFlags().StringVar(&basePath, "base-path", "", "root directory for backup storage")
	rootCmd.PersistentFlags().StringVar(&databaseDSN, "dsn", "", "MySQL DSN (user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to file in addition to stdout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit results as JSON")

	viper.BindPFlag("base_path", rootCmd.PersistentFlags().Lookup("base-path"))
	viper.BindPFlag("database.dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".orchestrall-backup")
	}

	viper.SetEnvPrefix("ORCHESTRALL_BACKUP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// loadConfig builds the engine configuration from the config file,
// environment, and CLI flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if verbose && quiet {
		return nil, fmt.Errorf("--verbose and --quiet flags are mutually exclusive")
	}

	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if basePath != "" {
		cfg.BasePath = basePath
	}
	if databaseDSN != "" {
		cfg.Database.DSN = databaseDSN
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	if cmd.Flags().Changed("verbose") && verbose {
		cfg.Log.Level = string(logging.LogLevelVerbose)
	}
	if cmd.Flags().Changed("quiet") && quiet {
		cfg.Log.Level = string(logging.LogLevelQuiet)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// newLogger builds the engine logger from configuration.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(logging.Config{
		Level:   logging.LogLevel(cfg.Log.Level),
		Format:  cfg.Log.Format,
		LogFile: cfg.Log.File,
	})
}

// newService assembles the engine: configuration, logger, data store, and
// the backup service on top.
func newService(cmd *cobra.Command) (*backup.Service, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	registry, err := datastore.NewRegistry(datastore.DefaultSpecs())
	if err != nil {
		return nil, nil, err
	}

	if cfg.Database.DSN == "" {
		return nil, nil, fmt.Errorf("database.dsn is required (flag --dsn, env ORCHESTRALL_BACKUP_DATABASE_DSN, or config file)")
	}
	store, err := datastore.OpenSQLStore(cfg.Database.DSN, registry)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	service, err := backup.NewService(cfg, store, registry, logger)
	if err != nil {
		return nil, nil, err
	}
	return service, cfg, nil
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("orchestrall-backup version %s\n", version)
			fmt.Printf("Built: %s\n", buildTime)
			fmt.Printf("Commit: %s\n", gitCommit)
		},
	}
}

func createConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Generate a sample configuration file",
		Long: `Generate a sample configuration file that can be used with the --config
flag. Redirect the output to a file and customize it for your environment:

  orchestrall-backup config > config.yaml`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(sampleConfig)
		},
	}
}

const sampleConfig = `# orchestrall-backup configuration file

# Root directory for backup storage and job records
base_path: ./backups

# Optional source directories copied into full backups
application_dir: ""
configuration_dir: ""

# Database connection
database:
  dsn: ""                  # user:pass@tcp(host:3306)/dbname (use env var for credentials)

# Compression applied to table exports: none, gzip, lz4, zstd
compression: gzip

# At-rest encryption of table exports (AES-256-GCM)
encryption:
  enabled: false
  passphrase: ""           # required when enabled; prefer ORCHESTRALL_BACKUP_ENCRYPTION_PASSPHRASE

# Retention window for completed backups
retention:
  days: 30
  sweep_schedule: "0 3 * * *"   # cron expression for automatic sweeps

# Automatic backup schedules (cron expressions)
schedule:
  enabled: false
  full: "0 2 * * *"             # Daily at 02:00
  incremental: "0 */6 * * *"    # Every six hours

# Offsite replication of completed backups: "", s3, gcs, azure
offsite:
  provider: ""
  s3:
    bucket: ""
    region: ""
    access_key: ""
    secret_key: ""
    endpoint: ""             # optional, for S3-compatible services
  gcs:
    bucket: ""
    project_id: ""
    credentials_path: ""     # optional, defaults to application default credentials
  azure:
    account_name: ""
    account_key: ""
    container_name: ""

# Logging
log:
  level: normal              # quiet, normal, verbose, debug
  format: text               # text or json
  file: ""                   # optional log file, appended to stdout output

# Environment variables override the file with the prefix ORCHESTRALL_BACKUP_
# Examples:
#   ORCHESTRALL_BACKUP_DATABASE_DSN=user:pass@tcp(db:3306)/orchestrall
#   ORCHESTRALL_BACKUP_ENCRYPTION_PASSPHRASE=...
`
