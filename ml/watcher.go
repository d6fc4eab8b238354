package ml

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchArtifact reports changes to the artifact file at path until ctx is
// done. The loaded pipeline is never replaced; onChange only observes.
func WatchArtifact(ctx context.Context, path string, log *zap.Logger, onChange func(fsnotify.Event)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: replacing a file by rename drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				log.Warn("model artifact changed on disk; keeping the loaded model until restart",
					zap.String("path", abs), zap.String("op", event.Op.String()))
				if onChange != nil {
					onChange(event)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error("artifact watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
