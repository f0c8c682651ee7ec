package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hyperjump/kioku/internal/models"
)

// DiskUsageBytes sums the on-disk size of the given paths. Directories are
// walked recursively. Empty and missing paths contribute nothing, so the
// database and snapshot paths can be passed before either file exists.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, path := range paths {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("%w: stat %s: %v", models.ErrStorage, path, err)
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("%w: walk %s: %v", models.ErrStorage, path, err)
		}
	}
	return total, nil
}
