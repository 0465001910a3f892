package cmd

import (
	"errors"
	"fmt"

	"hapdb/internal/export"
	"hapdb/internal/storage"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	exportOut string
	exportS3  bool
)

var exportCmd = &cobra.Command{
	Use:   "export <logfile>",
	Short: "Parse a log file into gzip JSON lines",
	Long: `Parse an HAProxy log file and write the records as gzip-compressed JSON
lines to a file, stdout (--out -), the configured S3 bucket, and/or push
them to Loki.

Examples:
  hapdb export haproxy.log --out haproxy.jsonl.gz
  hapdb export haproxy.log --out - | zcat | jq .status_code
  HAPDB_S3_BUCKET=logs HAPDB_S3_REGION=eu-west-1 hapdb export haproxy.log --s3
  hapdb export haproxy.log --loki http://localhost:3100`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file, - for stdout")
	exportCmd.Flags().BoolVar(&exportS3, "s3", false, "upload to the configured S3 bucket")
	exportCmd.Flags().String("loki", "", "Loki base URL to push records to")
	cobra.CheckErr(viper.BindPFlag("loki_url", exportCmd.Flags().Lookup("loki")))
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if exportOut == "" && !exportS3 && cfg.LokiURL == "" {
		return errors.New("nothing to export to: set --out, --s3 or --loki")
	}
	if exportS3 && !cfg.S3.Enabled() {
		return errors.New("--s3 needs s3.bucket in the config or HAPDB_S3_BUCKET")
	}

	sinks := map[string]storage.Sink{}
	if exportOut != "" {
		fs := export.NewFileSink(exportOut)
		fs.SetStdout(cmd.OutOrStdout())
		sinks["file"] = fs
	}
	if exportS3 {
		s3Sink, err := export.NewS3Sink(ctx, cfg.S3)
		if err != nil {
			return err
		}
		sinks["s3"] = s3Sink
	}
	if cfg.LokiURL != "" {
		sinks["loki"] = export.NewLokiSink(cfg.LokiURL)
	}

	path := args[0]
	records, err := parseFile(ctx, path)
	if err != nil {
		return err
	}

	for _, name := range []string{"file", "s3", "loki"} {
		sink, ok := sinks[name]
		if !ok {
			continue
		}
		run, err := sink.Ingest(ctx, path, records)
		if err != nil {
			return fmt.Errorf("%s export: %w", name, err)
		}
		coll.ObserveStored(name, run.Records)
	}
	return nil
}
