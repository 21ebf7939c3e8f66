package quality

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Report renders the findings as a markdown document: a severity summary
// followed by per-symbol detail, symbols sorted alphabetically.
func Report(issues map[string][]Issue, generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString("# Market Data Quality Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", generatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Symbols checked: %d\n\n", len(issues))

	counts := make(map[Severity]int)
	for _, symbolIssues := range issues {
		for _, issue := range symbolIssues {
			counts[issue.Severity]++
		}
	}

	b.WriteString("## Summary\n")
	for _, severity := range []Severity{SeverityCritical, SeverityWarning, SeverityInfo} {
		if counts[severity] == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s: %d\n", strings.ToUpper(string(severity)), counts[severity])
	}
	b.WriteString("\n## Details\n")

	symbols := make([]string, 0, len(issues))
	for symbol := range issues {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		fmt.Fprintf(&b, "\n### %s\n", symbol)
		for _, issue := range issues[symbol] {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", strings.ToUpper(string(issue.Severity)), issue.Kind, issue.Description)
		}
	}
	return b.String()
}
