package cmd

import (
	"fmt"
	"sort"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-logger/internal/config"
	"github.com/kozaktomas/face-logger/internal/identity"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Inspect registered people",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered people and their sample counts",
	RunE:  runIdentitiesList,
}

var identitiesAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Find samples of different people that could be confused",
	Long: `Search the nearest samples of every registered sample and report pairs of
different people that are within the match threshold of each other. Such
pairs make recognition ambiguous; re-register one of the people or remove
the offending sample file.`,
	RunE: runIdentitiesAudit,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesListCmd)
	identitiesCmd.AddCommand(identitiesAuditCmd)

	identitiesListCmd.Flags().Bool("json", false, "Output as JSON")

	identitiesAuditCmd.Flags().Int("k", 5, "Neighbors checked per sample")
	identitiesAuditCmd.Flags().Float64("threshold", 0, "Conflict distance (0 = MATCH_THRESHOLD)")
	identitiesAuditCmd.Flags().Bool("json", false, "Output as JSON")
}

// IdentitySummary is one registered person.
type IdentitySummary struct {
	Label   string `json:"label"`
	Samples int    `json:"samples"`
}

// ConflictSummary is one pair of confusable samples.
type ConflictSummary struct {
	LabelA   string  `json:"label_a"`
	FileA    string  `json:"file_a"`
	LabelB   string  `json:"label_b"`
	FileB    string  `json:"file_b"`
	Distance float64 `json:"distance"`
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := identity.Load(cfg.Faces.Dir, cfg.Faces.Dim)
	if err != nil {
		return err
	}

	counts := store.CountByLabel()
	summaries := make([]IdentitySummary, 0, len(counts))
	for label, n := range counts {
		summaries = append(summaries, IdentitySummary{Label: label, Samples: n})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Label < summaries[j].Label })

	if mustGetBool(cmd, "json") {
		return outputJSON(summaries)
	}

	if len(summaries) == 0 {
		fmt.Printf("No registered people in %s\n", store.Dir())
		return nil
	}
	fmt.Printf("%-40s %s\n", "NAME", "SAMPLES")
	for _, s := range summaries {
		fmt.Printf("%-40s %d\n", s.Label, s.Samples)
	}
	fmt.Printf("\n%d people, %d samples\n", len(summaries), store.Len())
	return nil
}

func runIdentitiesAudit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	threshold := mustGetFloat64(cmd, "threshold")
	if threshold <= 0 {
		threshold = cfg.Matching.Threshold
	}
	jsonOutput := mustGetBool(cmd, "json")

	store, err := identity.Load(cfg.Faces.Dir, cfg.Faces.Dim)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	var progress func()
	if !jsonOutput {
		bar = progressbar.NewOptions(store.Len(),
			progressbar.OptionSetDescription("Auditing samples"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("samples"),
			progressbar.OptionFullWidth(),
		)
		progress = func() { bar.Add(1) }
	}

	conflicts := identity.Audit(store, threshold, mustGetInt(cmd, "k"), progress)
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}

	summaries := make([]ConflictSummary, 0, len(conflicts))
	for _, c := range conflicts {
		summaries = append(summaries, ConflictSummary{
			LabelA:   c.A.Label,
			FileA:    c.A.Path,
			LabelB:   c.B.Label,
			FileB:    c.B.Path,
			Distance: c.Distance,
		})
	}

	if jsonOutput {
		return outputJSON(summaries)
	}

	if len(summaries) == 0 {
		fmt.Printf("No conflicts within %.2f among %d samples.\n", threshold, store.Len())
		return nil
	}
	for _, s := range summaries {
		fmt.Printf("%.4f  %s <-> %s\n", s.Distance, s.LabelA, s.LabelB)
		fmt.Printf("        %s\n        %s\n", s.FileA, s.FileB)
	}
	fmt.Printf("\n%d conflicting pair(s) within %.2f\n", len(summaries), threshold)
	return nil
}
