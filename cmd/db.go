package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-logger/internal/config"
	"github.com/kozaktomas/face-logger/internal/database/postgres"
	"github.com/kozaktomas/face-logger/internal/encoder"
	"github.com/kozaktomas/face-logger/internal/identity"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the PostgreSQL mirror",
	Long: `Commands for the optional PostgreSQL (pgvector) mirror configured with
DATABASE_URL. Migrations are applied automatically on connect.`,
}

var dbPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push registered samples into PostgreSQL",
	Long: `Insert every sample of the faces directory into the identity_embeddings
table. Samples already pushed are left untouched.

Examples:
  face-logger db push
  face-logger db push --prune   # also delete rows whose file was removed`,
	RunE: runDBPush,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied migrations and pushed samples",
	RunE:  runDBStatus,
}

var dbNearestCmd = &cobra.Command{
	Use:   "nearest <image>",
	Short: "Query the pushed samples closest to the face in a photo",
	Args:  cobra.ExactArgs(1),
	RunE:  runDBNearest,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbPushCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbNearestCmd)

	dbPushCmd.Flags().Bool("prune", false, "Delete rows of samples no longer on disk")
	dbNearestCmd.Flags().Int("limit", 5, "Number of rows to return")
}

// openDatabase loads config and connects to the mirror, which is required here.
func openDatabase(ctx context.Context) (*config.Config, *postgres.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Println("Connecting to PostgreSQL database...")
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return cfg, pool, nil
}

func runDBPush(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, pool, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := identity.Load(cfg.Faces.Dir, cfg.Faces.Dim)
	if err != nil {
		return err
	}
	if store.Len() == 0 && !mustGetBool(cmd, "prune") {
		fmt.Printf("No samples in %s\n", store.Dir())
		return nil
	}

	bar := progressbar.NewOptions(store.Len(),
		progressbar.OptionSetDescription("Pushing samples"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("samples"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	stats, err := postgres.NewIdentityRepository(pool).Push(ctx, store.Embeddings(), mustGetBool(cmd, "prune"), func() { bar.Add(1) })
	bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	fmt.Printf("Inserted: %d\n", stats.Inserted)
	fmt.Printf("Already present: %d\n", stats.Existing)
	if stats.Removed > 0 {
		fmt.Printf("Removed: %d\n", stats.Removed)
	}
	return nil
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, pool, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	versions, err := pool.MigrationsApplied(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Applied migrations:")
	for _, v := range versions {
		fmt.Printf("  %s\n", v)
	}

	counts, err := postgres.NewIdentityRepository(pool).CountByLabel(ctx)
	if err != nil {
		return err
	}
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	fmt.Printf("\nPushed people: %d\n", len(labels))
	for _, label := range labels {
		fmt.Printf("  %-40s %d\n", label, counts[label])
	}
	return nil
}

func runDBNearest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, pool, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	data, scale, err := encoder.LoadImageFile(args[0], cfg.Embedding.MaxSize)
	if err != nil {
		return err
	}
	faces, err := newEncoder(cfg).DetectFaces(ctx, data)
	if err != nil {
		return fmt.Errorf("detecting faces: %w", err)
	}
	faces = encoder.ScaleFaces(faces, scale)
	if len(faces) == 0 {
		return errors.New("no face detected in the image")
	}

	repo := postgres.NewIdentityRepository(pool)
	for i, face := range faces {
		matches, err := repo.Nearest(ctx, face.Embedding, mustGetInt(cmd, "limit"))
		if err != nil {
			return err
		}
		fmt.Printf("Face %d at %v (detection score %.2f):\n", i, face.Box, face.DetScore)
		for _, m := range matches {
			marker := ""
			if m.Distance <= cfg.Matching.Threshold {
				marker = "  match"
			}
			fmt.Printf("  %.4f  %-30s %s%s\n", m.Distance, m.Label, m.File, marker)
		}
	}
	return nil
}
