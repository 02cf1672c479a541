package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-logger/internal/attendance"
	"github.com/kozaktomas/face-logger/internal/config"
	"github.com/kozaktomas/face-logger/internal/database/postgres"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the newest attendance log entries",
	Long: `Print the newest entries of the attendance log, oldest first.

By default the CSV log (LOG_FILE) is read. With --db the PostgreSQL mirror
(DATABASE_URL) is queried instead.`,
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().Int("limit", 20, "Number of entries to show (0 = all)")
	logsCmd.Flags().Bool("db", false, "Read from the PostgreSQL mirror")
	logsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	limit := mustGetInt(cmd, "limit")
	if limit < 0 {
		return errors.New("--limit must not be negative")
	}

	var records []attendance.Record
	if mustGetBool(cmd, "db") {
		records, err = recentFromDatabase(cmd.Context(), cfg, limit)
	} else {
		records, err = attendance.ReadAll(cfg.Log.Path)
		records = attendance.Tail(records, limit)
	}
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		if records == nil {
			records = []attendance.Record{}
		}
		return outputJSON(records)
	}

	if len(records) == 0 {
		fmt.Println("No log entries.")
		return nil
	}
	fmt.Printf("%-19s  %-10s  %s\n", "TIMESTAMP", "STATUS", "NAME")
	for _, rec := range records {
		fmt.Printf("%s  %-10s  %s\n", rec.Time.Format(attendance.TimeLayout), rec.Status, rec.Name)
	}
	return nil
}

func recentFromDatabase(ctx context.Context, cfg *config.Config, limit int) ([]attendance.Record, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required for --db")
	}
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	if limit == 0 {
		limit = 1 << 30
	}
	return postgres.NewAttendanceRepository(pool).Recent(ctx, limit)
}
