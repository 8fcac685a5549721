package file

import (
	"os"
	"path/filepath"
	"time"
)

// FindOlderThan returns all regular files under dir whose modification
// time is at or before cutoff. Used to prune downloaded artifacts.
func FindOlderThan(dir string, cutoff time.Time) ([]string, error) {
	var staleFiles []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && !info.ModTime().After(cutoff) {
			staleFiles = append(staleFiles, path)
		}
		return nil
	})

	return staleFiles, err
}
