package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/logger"
)

// Subdirectories processed files are moved into.
const (
	DoneDir   = "done"
	FailedDir = "failed"
)

// Ingester is the part of the pipeline the inbox feeds.
type Ingester interface {
	IngestBatch(ctx context.Context, records []domain.IngestRecord) ([]domain.DocumentStatus, error)
}

// Watcher ingests *.json files that appear in a directory. Producers should
// write to a temporary name and rename into place so a file is never read
// half written. Files ending in .tmp are ignored.
type Watcher struct {
	dir      string
	pipeline Ingester
}

// NewWatcher creates the inbox directory layout under dir.
func NewWatcher(dir string, pipeline Ingester) (*Watcher, error) {
	for _, d := range []string{dir, filepath.Join(dir, DoneDir), filepath.Join(dir, FailedDir)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return nil, fmt.Errorf("create inbox dir: %w", err)
		}
	}
	return &Watcher{dir: dir, pipeline: pipeline}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Run processes files already present, then watches for new ones until ctx
// is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	if err := w.Drain(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.candidate(event); ok {
				w.process(ctx, path)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("inbox: watcher error: %v", err)
		}
	}
}

// Drain processes every pending file once.
func (w *Watcher) Drain(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isPayload(e.Name()) {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		w.process(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// candidate reports whether event names a payload file ready to process.
func (w *Watcher) candidate(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if filepath.Dir(event.Name) != filepath.Clean(w.dir) || !isPayload(filepath.Base(event.Name)) {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return "", false
	}
	return event.Name, true
}

func (w *Watcher) process(ctx context.Context, path string) {
	ingestErr := w.ingestFile(ctx, path)
	target := DoneDir
	if ingestErr != nil {
		target = FailedDir
		logger.Warn("inbox: %s: %v", filepath.Base(path), ingestErr)
	} else {
		logger.Info("inbox: ingested %s", filepath.Base(path))
	}

	dest := filepath.Join(w.dir, target, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("inbox: move %s: %v", filepath.Base(path), err)
	}
	if ingestErr != nil {
		if err := os.WriteFile(dest+".error", []byte(ingestErr.Error()+"\n"), 0600); err != nil {
			logger.Error("inbox: write error report for %s: %v", filepath.Base(path), err)
		}
	}
}

func (w *Watcher) ingestFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := Decode(f)
	if err != nil {
		return err
	}
	_, err = w.pipeline.IngestBatch(ctx, records)
	return err
}

func isPayload(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}
