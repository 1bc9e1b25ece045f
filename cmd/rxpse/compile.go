package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/titanics/rxpse"
)

var (
	compilePatternsPath string
	compileSkipExternal bool
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Generate and compile a rule definition file",
	Long: `Generate the RXP rule definition file from a patterns YAML file and run
the external rule compiler over it. With --skip-compiler only the rule
definition file is written.`,
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().StringVar(&compilePatternsPath, "patterns", "", "Patterns YAML file (required)")
	compileCmd.Flags().BoolVar(&compileSkipExternal, "skip-compiler", false, "Write the rule file without invoking the external compiler")
	compileCmd.MarkFlagRequired("patterns")
}

func runCompile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if compileSkipExternal {
		cfg.CompilerBinary = ""
	} else if cfg.CompilerBinary == "" {
		cfg.CompilerBinary = "rxpc"
	}

	engine, err := rxpse.New(rxpse.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := loadPatterns(engine, compilePatternsPath); err != nil {
		return err
	}

	program, err := engine.CompileRules(cmd.Context())
	if err != nil {
		return fmt.Errorf("compiling rules: %w", err)
	}

	snap := engine.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d patterns in %d subsets (%d duplicates folded)\n",
		program, snap.Patterns, snap.Instances, snap.Duplicates)
	return nil
}
