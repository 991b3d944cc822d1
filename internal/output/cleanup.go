package output

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"
)

// Remove deletes every path and logs each deletion. Paths that are already
// gone are skipped. It returns how many files were deleted.
func Remove(paths []string, logger *zap.Logger) (int, error) {
	removed := 0
	for _, p := range paths {
		err := os.Remove(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("delete %s: %w", p, err)
		}
		removed++
		logger.Info("Deleted file", zap.String("path", p))
	}
	return removed, nil
}
