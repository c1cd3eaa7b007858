package runtime

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/gjbm2/screen-machine/internal/cmn/logger"
	"github.com/gjbm2/screen-machine/internal/cmn/logger/tag"
	"github.com/gjbm2/screen-machine/internal/core/spec"
)

// WatchSchedules watches a directory of schedule documents and validates
// each file as it is written. It only reports; loading onto a destination
// stays an explicit operation. Returns when the context is cancelled.
func WatchSchedules(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	logger.Info(ctx, "Watching schedule directory", tag.Dir(dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isScheduleFile(event.Name) {
				continue
			}
			if _, err := spec.LoadFile(event.Name); err != nil {
				logger.Warn(ctx, "Schedule failed validation",
					tag.File(event.Name), tag.Error(err))
			} else {
				logger.Info(ctx, "Schedule validated", tag.File(event.Name))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error(ctx, "Watcher error", tag.Error(err))
		}
	}
}

func isScheduleFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
