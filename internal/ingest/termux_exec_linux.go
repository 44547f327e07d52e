//go:build linux

package ingest

import (
	"context"
	"fmt"
	"os/exec"
)

func runTermuxCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
