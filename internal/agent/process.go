package agent

import (
	"context"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessLister returns the names of the processes currently running
type ProcessLister func(ctx context.Context) ([]string, error)

// ListProcesses enumerates local processes with gopsutil. Processes whose
// name cannot be read (exited, access denied) are skipped.
func ListProcesses(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return cleanNames(names), nil
}

// cleanNames lower-cases names, strips a trailing ".exe" and removes blanks
// and duplicates. The result is sorted.
func cleanNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))

	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		n = strings.TrimSuffix(n, ".exe")
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}

	sort.Strings(out)
	return out
}
