package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/titanics/rxpse"
	"github.com/titanics/rxpse/pkg/types"
)

var (
	scanPatternsPath string
	scanSubset       int
)

var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Scan a file against a pattern set",
	Long: `Scan a file against a patterns YAML file using the software device.
The file is read in device-job-sized chunks; each match prints the pattern
and its end offset within the file.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanPatternsPath, "patterns", "", "Patterns YAML file (required)")
	scanCmd.Flags().IntVar(&scanSubset, "subset", 1, "Subset (instance) to search with")
	scanCmd.MarkFlagRequired("patterns")
}

func runScan(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading target: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.RulesFile = filepath.Join(os.TempDir(), "rxpse-scan.rules")
	cfg.CompilerBinary = "" // software device takes the rule file directly

	engine, err := rxpse.New(rxpse.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := loadPatterns(engine, scanPatternsPath); err != nil {
		return err
	}

	instances := engine.Instances()
	if scanSubset < 1 || scanSubset > len(instances) {
		return fmt.Errorf("subset %d out of range: patterns file defines %d", scanSubset, len(instances))
	}
	in := instances[scanSubset-1]

	if err := engine.Setup(cmd.Context()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	matchColor := color.New(color.FgGreen, color.Bold)
	total := 0
	mf := func(user any, tree types.Tree, to int, ctx any, list types.List) {
		total++
		fmt.Fprintf(out, "%s %v end=%d\n", matchColor.Sprint("match"), user, ctx.(int)+to)
	}

	// One job per chunk. A match straddling a chunk boundary is lost, the
	// same way hardware loses the tail of an over-long buffer.
	for off := 0; off < len(content); {
		end := min(off+engine.MaxJobLength(), len(content))
		if err := in.Search(cmd.Context(), content[off:end], mf, off); err != nil {
			return err
		}
		off = end
	}

	snap := engine.Stats()
	fmt.Fprintf(out, "%d matches, %d jobs, %d patterns (%d duplicates)\n",
		total, snap.JobsSubmitted, snap.Patterns, snap.Duplicates)
	if snap.MatchLimitExceeded > 0 {
		color.New(color.FgYellow).Fprintf(out, "warning: match limit exceeded on %d jobs\n", snap.MatchLimitExceeded)
	}
	return nil
}
