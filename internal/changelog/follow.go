package changelog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Follow reports packages changed after from as pacman appends to the log.
// Only complete lines are parsed; a partially written line is held back
// until its newline arrives. Every name is reported at most once. Follow
// returns when ctx is done.
func (f *File) Follow(ctx context.Context, from Marker, fn func(names []string)) error {
	if !from.Known {
		from = f.Mark()
		if !from.Known {
			return fmt.Errorf("follow %s: %w", f.path, ErrUnknownMarker)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			f.logger.Debug("close watcher", zap.Error(err))
		}
	}()

	// Watch the directory so a rotated log is picked up when it is recreated.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(f.path), err)
	}

	t := &tail{offset: from.Offset, seen: make(map[string]bool)}
	if err := t.poll(f.path, fn); err != nil {
		f.logger.Debug("initial read", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher closed unexpectedly")
			}
			if filepath.Clean(event.Name) != filepath.Clean(f.path) {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				f.logger.Debug("change log rotated", zap.String("path", f.path))
				t.offset = 0
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := t.poll(f.path, fn); err != nil {
					f.logger.Debug("read appended lines", zap.Error(err))
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher closed unexpectedly")
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

type tail struct {
	offset int64
	seen   map[string]bool
}

// poll reads complete lines past offset and advances it.
func (t *tail) poll(path string, fn func([]string)) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return err
	}
	if info.Size() < t.offset {
		t.offset = 0
	}
	if _, err := fh.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(fh)
	if err != nil {
		return err
	}

	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil
	}
	complete := data[:end+1]
	t.offset += int64(len(complete))

	var fresh []string
	for _, name := range ChangesSince(0, complete) {
		if t.seen[name] {
			continue
		}
		t.seen[name] = true
		fresh = append(fresh, name)
	}
	if len(fresh) > 0 {
		fn(fresh)
	}
	return nil
}
