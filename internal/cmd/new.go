package cmd

import (
	"fmt"

	"hapdb/internal/storage"

	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new <logfile>",
	Short: "Parse a log file into a new database",
	Long: `Parse an HAProxy log file and store every record in a database next to
it (<logfile>.db unless --db is given). The database path is printed on
stdout. Running it again on the same database appends a new ingest run.

Examples:
  hapdb new /var/log/haproxy.log
  hapdb new haproxy.log.1.gz --db /srv/hapdb/archive.db`,
	Args: cobra.ExactArgs(1),
	RunE: runNew,
}

func init() {
	rootCmd.AddCommand(newCmd)
}

func runNew(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	path := args[0]
	records, err := parseFile(ctx, path)
	if err != nil {
		return err
	}

	dbPath := cfg.DatabasePath(path)
	store, err := storage.NewBoltStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Ingest(ctx, path, records)
	if err != nil {
		return err
	}
	coll.ObserveStored("bolt", run.Records)

	fmt.Fprintln(cmd.OutOrStdout(), dbPath)
	return nil
}
