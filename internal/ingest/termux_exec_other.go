//go:build !linux

package ingest

import (
	"context"
	"fmt"
)

func runTermuxCommand(_ context.Context, name string, _ ...string) ([]byte, error) {
	return nil, fmt.Errorf("%s: termux commands are only available on Linux/Android", name)
}
