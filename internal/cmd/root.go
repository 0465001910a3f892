package cmd

import (
	"fmt"
	"os"

	"hapdb/internal/collector"
	"hapdb/internal/config"
	"hapdb/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	cfg      *config.Config
	coll     *collector.LogCollector
	registry *prometheus.Registry
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "hapdb",
	Short: "hapdb turns HAProxy HTTP logs into a queryable database",
	Long: `hapdb parses HAProxy HTTP-mode log files (optionally wrapped in a syslog
envelope or rotated to .gz) into structured records and stores them in a
local database, a gzip JSON-lines export, or S3.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: flushMetrics,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: $HOME/.hapdb.yaml)")
	flags.String("db", "", "database file (default: <input>.db)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Bool("log-pretty", false, "human-readable console logs")
	flags.Int("workers", 0, "parser goroutines (default: number of CPUs)")
	flags.String("metrics-textfile", "", "write parse metrics to this file in Prometheus text format")

	bind := map[string]string{
		"db_path":          "db",
		"log_level":        "log-level",
		"log_pretty":       "log-pretty",
		"workers":          "workers",
		"metrics_textfile": "metrics-textfile",
	}
	for key, flag := range bind {
		cobra.CheckErr(viper.BindPFlag(key, flags.Lookup(flag)))
	}
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".hapdb")
		viper.SetConfigType("yaml")
	}

	_ = viper.ReadInConfig()
}

// setup loads the resolved config, starts logging and prepares a fresh
// metrics registry for the command.
func setup(_ *cobra.Command, _ []string) error {
	c, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	cfg = c
	logger.Init(*cfg)

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug().Str("file", used).Msg("loaded config file")
	}

	registry = prometheus.NewRegistry()
	coll = collector.NewLogCollector()
	coll.Register(registry)
	return nil
}

func flushMetrics(_ *cobra.Command, _ []string) error {
	if cfg == nil || cfg.MetricsTextfile == "" {
		return nil
	}
	if err := collector.WriteTextfile(cfg.MetricsTextfile, registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	log.Debug().Str("path", cfg.MetricsTextfile).Msg("wrote metrics textfile")
	return nil
}
