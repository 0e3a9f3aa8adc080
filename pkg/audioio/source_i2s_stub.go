//go:build !linux

package audioio

import (
	"fmt"
	"log/slog"
)

// newI2SSource returns an error on non-Linux platforms.
func newI2SSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, fmt.Errorf("i2s capture is only available on Linux")
}
