package platform

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// InstanceCounter counts running processes whose executable lives under a directory.
type InstanceCounter interface {
	CountUnder(ctx context.Context, dir string) (int, error)
}

// ProcessScanner implements InstanceCounter with gopsutil.
type ProcessScanner struct{}

// CountUnder returns the number of running processes with an executable
// inside dir. Processes whose executable path cannot be read (commonly
// protected system processes) are ignored.
func (ProcessScanner) CountUnder(ctx context.Context, dir string) (int, error) {
	if strings.TrimSpace(dir) == "" {
		return 0, nil
	}
	root := filepath.Clean(dir)

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}

	count := 0
	for _, p := range procs {
		exe, err := p.ExeWithContext(ctx)
		if err != nil || exe == "" {
			continue
		}
		if isUnder(root, filepath.Clean(exe)) {
			count++
		}
	}
	return count, nil
}

func isUnder(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "."
}
