// Package compiler generates the RXP rule definition file and drives the
// external rule compiler that turns it into a hardware-loadable rule
// program.
package compiler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dlclark/regexp2"

	"github.com/titanics/rxpse/pkg/mpse"
)

// Config locates the rule compiler and its inputs and outputs.
type Config struct {
	// RulesFile is the rule definition file to write and compile.
	RulesFile string

	// OutputDir receives the compiled rule program.
	OutputDir string

	// Binary is the compiler executable. Defaults to "rxpc".
	Binary string

	// Prefix names the output files under OutputDir. Defaults to "rxpse".
	Prefix string
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = "rxpc"
	}
	if c.Prefix == "" {
		c.Prefix = "rxpse"
	}
	return c
}

// CompilationError reports a rule compiler run that exited non-zero.
type CompilationError struct {
	Output []byte // combined stdout/stderr of the compiler
	Err    error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("rule compilation failed: %v", e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// WriteRuleFile emits the rule definition consumed by the external compiler:
// one section per instance in construction order, each a subset_id line
// followed by one "ruleid, pattern" line per pattern in registration order.
func WriteRuleFile(w io.Writer, instances []*mpse.Instance) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "# RXP subsets file generated by rxpse")
	for _, in := range instances {
		fmt.Fprintf(bw, "subset_id = %d\n", in.SubsetID())
		for _, p := range in.Patterns() {
			fmt.Fprintf(bw, "%d, %s\n", p.RuleID, p.Text)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing rule file: %w", err)
	}
	return nil
}

// WriteRuleFileTo writes the rule definition to path.
func WriteRuleFileTo(path string, instances []*mpse.Instance) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating rule file: %w", err)
	}

	if err := WriteRuleFile(f, instances); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Validate checks that every escaped pattern compiles as a regex before the
// external compiler sees it, so malformed patterns fail at configuration
// time with a rule id attached instead of as an opaque compiler exit.
func Validate(instances []*mpse.Instance) error {
	for _, in := range instances {
		for _, p := range in.Patterns() {
			if _, err := regexp2.Compile(p.Text, regexp2.None); err != nil {
				return fmt.Errorf("rule %d: invalid pattern %q: %w", p.RuleID, p.Text, err)
			}
		}
	}
	return nil
}

// Compile runs the external rule compiler over cfg.RulesFile in full-payload
// match mode with forced rebuild. A non-zero exit is returned as a
// *CompilationError carrying the compiler's output.
func Compile(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, cfg.Binary,
		"-f", cfg.RulesFile,
		"-o", filepath.Join(cfg.OutputDir, cfg.Prefix),
		"--ptpb", "0",
		"-F",
		"-i",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &CompilationError{Output: out, Err: err}
	}
	return nil
}

// ProgramPath returns where Compile leaves the rule program for device
// programming.
func ProgramPath(cfg Config) string {
	cfg = cfg.withDefaults()
	return filepath.Join(cfg.OutputDir, cfg.Prefix+".rof")
}
