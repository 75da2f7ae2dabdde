package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Provider hands out the registry to use for one dispatch.
type Provider interface {
	Registry(ctx context.Context) (*Registry, error)
}

// Reload modes for Open.
const (
	ReloadStartup = "startup"
	ReloadRequest = "request"
)

// Options selects how the registry file is loaded.
type Options struct {
	Path   string
	Reload string // startup or request
	Watch  bool   // only with startup: reload when the file changes
}

// Static always returns the same registry.
type Static struct {
	reg *Registry
}

// NewStatic wraps reg.
func NewStatic(reg *Registry) *Static {
	return &Static{reg: reg}
}

// Registry implements Provider
func (s *Static) Registry(ctx context.Context) (*Registry, error) {
	return s.reg, nil
}

// FileProvider loads the file again on every call, so edits apply to the next request.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider for path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Registry implements Provider
func (p *FileProvider) Registry(ctx context.Context) (*Registry, error) {
	return Load(p.path)
}

// Watcher serves a cached registry and replaces it when the file changes.
// A reload that fails keeps the previous registry.
type Watcher struct {
	path    string
	current atomic.Pointer[Registry]
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	done    chan struct{}
}

// NewWatcher loads path and starts watching it until ctx ends or Close is called.
func NewWatcher(ctx context.Context, path string, logger *slog.Logger) (*Watcher, error) {
	reg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory: editors often replace the file instead of writing it.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		logger:  logger,
		done:    make(chan struct{}),
	}
	w.current.Store(reg)

	go w.loop(ctx)
	return w, nil
}

// Registry implements Provider
func (w *Watcher) Registry(ctx context.Context) (*Registry, error) {
	return w.current.Load(), nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Registry watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	reg, err := Load(w.path)
	if err != nil {
		w.logger.Error("Registry reload failed, keeping previous services", "path", w.path, "error", err)
		return
	}
	w.current.Store(reg)
	w.logger.Info("Registry reloaded", "path", w.path, "services", reg.Len())
}

// Open builds the provider selected by opts. The returned close function
// releases the file watcher, if any.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Provider, func() error, error) {
	noop := func() error { return nil }
	switch opts.Reload {
	case ReloadRequest:
		return NewFileProvider(opts.Path), noop, nil
	case ReloadStartup, "":
		if opts.Watch {
			w, err := NewWatcher(ctx, opts.Path, logger)
			if err != nil {
				return nil, nil, err
			}
			return w, w.Close, nil
		}
		reg, err := Load(opts.Path)
		if err != nil {
			return nil, nil, err
		}
		return NewStatic(reg), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown registry reload mode %q", opts.Reload)
}
