package advisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchCatalog reloads the catalog at path into store whenever the file is
// written or replaced, until ctx is cancelled. A catalog that fails to load
// is logged and the previous one stays active.
//
// The parent directory is watched rather than the file: a save that renames a
// temp file over path replaces the inode and would drop a watch on the file.
func WatchCatalog(ctx context.Context, path string, store *CatalogStore, logger *zap.Logger, m *Metrics) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("catalog watch: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	logger.Info("watching catalog", zap.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			// a temp file renamed over path arrives as Create
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			c, err := LoadCatalog(path)
			if err != nil {
				m.CatalogReload("error")
				logger.Error("catalog reload failed, keeping previous catalog", zap.String("path", path), zap.Error(err))
				continue
			}
			store.Store(c)
			m.CatalogReload("ok")
			logger.Info("catalog reloaded",
				zap.String("path", path),
				zap.Int("crops", len(c.Crops)),
				zap.Int("treatments", len(c.Treatments)))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("catalog watcher error", zap.Error(err))
		}
	}
}
