// Package cmd provides the command-line interface of the docmender service.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"docmender/internal/application/common/logging"
	"docmender/internal/application/common/slogger"
	"docmender/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "docmender",
	Short: "A document validation and correction pipeline",
	Long: `Docmender ingests structured documents, validates them against a JSON
Schema, and routes failures through an asynchronous correction pipeline
backed by NATS JetStream and a generative model.

The pipeline provides:
- Schema validation with per-field violation reporting
- At-least-once correction jobs with exponential-backoff retry
- Token-budget escalation when model output is truncated
- Dead-lettering with full context after exhausted attempts
- Idempotent persistence in PostgreSQL keyed on document id`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	if err := viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
	}
	if err := viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-format flag: %v\n", err)
	}
}

func initConfig() {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DOCMENDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// Config file not found; defaults and environment apply.
	}

	cfg = config.New(v)

	logger, err := logging.NewApplicationLogger(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
	slogger.SetGlobalLogger(logger)
}

func setDefaults(v *viper.Viper) {
	// Worker defaults
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.job_timeout", "2m")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "docmender")
	v.SetDefault("database.name", "docmender")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")

	// Queue defaults
	v.SetDefault("queue.stream", "CORRECTIONS")
	v.SetDefault("queue.subject", "corrections.job")
	v.SetDefault("queue.dlq_subject", "corrections.dlq")
	v.SetDefault("queue.durable_name", "correction-workers")
	v.SetDefault("queue.max_deliver", 3)
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.visibility_timeout", "30s")
	v.SetDefault("queue.long_poll_wait", "5s")
	v.SetDefault("queue.backoff_base", "5s")
	v.SetDefault("queue.backoff_ceiling", "300s")

	// Corrector defaults
	v.SetDefault("corrector.model", "gemini-2.0-flash")
	v.SetDefault("corrector.timeout", "60s")
	v.SetDefault("corrector.token_budgets", []int{1024, 4096, 8192})

	// Schema defaults
	v.SetDefault("schema.path", "./configs/document.schema.yaml")

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
