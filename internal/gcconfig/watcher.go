package gcconfig

import (
	"github.com/fsnotify/fsnotify"

	"github.com/regiongc/regiongc/internal/gclog"
)

// Watcher reloads a config document whenever it changes on disk,
// handing validated replacements to the host through Updates(). Only
// non-structural knobs are expected to change at runtime (pacing,
// log level); the host is responsible for deciding which fields of a
// reloaded Config it actually applies.
//
// Grounded on SeleniaProject-Orizon/internal/runtime/vfs/watch_fsnotify.go's
// fsnotify.Watcher-plus-event-loop-goroutine shape, narrowed from a
// general filesystem watcher to a single config file's Write/Create
// events.
type Watcher struct {
	path string
	fsw  *fsnotify.Watcher
	log  *gclog.Logger

	updates chan *Config
	errors  chan error
	done    chan struct{}
}

// NewWatcher starts watching path for changes, emitting a freshly
// loaded and validated Config on Updates() after every write. An
// invalid reload (bad JSON, failed Validate) is sent to Errors()
// instead and the previous config stands.
func NewWatcher(path string, log *gclog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	if log == nil {
		log = gclog.NewNop()
	}
	w := &Watcher{
		path:    path,
		fsw:     fsw,
		log:     log,
		updates: make(chan *Config, 1),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Warn("config reload rejected", "path", w.path, "error", err)
				select {
				case w.errors <- err:
				default:
				}
				continue
			}
			w.log.Info("config reloaded", "path", w.path, "schema_version", cfg.SchemaVersion)
			select {
			case w.updates <- cfg:
			default:
				// drop the stale pending update, keep the freshest one
				select {
				case <-w.updates:
				default:
				}
				w.updates <- cfg
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		case <-w.done:
			return
		}
	}
}

// Updates returns the channel of successfully reloaded configs.
func (w *Watcher) Updates() <-chan *Config { return w.updates }

// Errors returns the channel of reload failures (bad JSON, failed
// Validate, or an underlying fsnotify error).
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops the watcher and releases its fsnotify resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
