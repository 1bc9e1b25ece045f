package device

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// RuleDef is one rule parsed from a rule definition file.
type RuleDef struct {
	ID      uint32
	Pattern string // escaped form, exactly as written
}

// SubsetRules groups the rules of one subset_id section.
type SubsetRules struct {
	ID    uint16
	Rules []RuleDef
}

// ParseRuleFile reads a rule definition file: '#' comment lines, subset_id
// section headers, and "ruleid, pattern" entries. Software device backends
// accept this file directly in place of a compiled rule program.
func ParseRuleFile(path string) ([]SubsetRules, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rule file: %w", err)
	}
	defer f.Close()

	var subsets []SubsetRules
	cur := -1

	sc := bufio.NewScanner(f)
	for lineno := 1; sc.Scan(); lineno++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if rest, ok := strings.CutPrefix(line, "subset_id"); ok {
			rest = strings.TrimSpace(rest)
			rest, ok = strings.CutPrefix(rest, "=")
			if !ok {
				return nil, fmt.Errorf("line %d: malformed subset header %q", lineno, line)
			}
			id, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 16)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad subset id: %w", lineno, err)
			}
			subsets = append(subsets, SubsetRules{ID: uint16(id)})
			cur = len(subsets) - 1
			continue
		}

		if cur < 0 {
			return nil, fmt.Errorf("line %d: rule before any subset_id header", lineno)
		}

		idText, pat, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("line %d: malformed rule line %q", lineno, line)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(idText), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad rule id: %w", lineno, err)
		}
		subsets[cur].Rules = append(subsets[cur].Rules, RuleDef{
			ID:      uint32(id),
			Pattern: strings.TrimSpace(pat),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}

	return subsets, nil
}
