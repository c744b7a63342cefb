package mapping

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Registry loads mapping tables by path, caching one *Table per path so
// every caller referencing the same file shares the same instance, and
// optionally hot-reloads a table's contents in place when its file
// changes on disk (opt-in via the Solr.watch_mapping_files setting).
type Registry struct {
	logger *logrus.Logger

	mu      sync.Mutex
	tables  map[string]*Table
	hashes  map[string]uint64
	watcher *fsnotify.Watcher
}

// NewRegistry builds an empty Registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		logger: logger,
		tables: make(map[string]*Table),
		hashes: make(map[string]uint64),
	}
}

// Load returns the cached *Table for path, parsing it on first use.
func (reg *Registry) Load(path string) (*Table, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if t, ok := reg.tables[abs]; ok {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	table, err := parseTable(path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	reg.tables[abs] = table
	reg.hashes[abs] = xxhash.Sum64(data)
	return table, nil
}

// Watch starts an fsnotify watch over every directory holding a
// registered mapping file. A write event re-reads the file and, only if
// its xxhash actually changed (fsnotify fires duplicate WRITE events on
// some platforms/editors), reparses it and swaps the cached Table's
// contents in place so holders of the old pointer see the update.
// Watch returns once the watcher is started; reload errors are logged,
// not returned, since a bad edit to one mapping file must not take down
// an in-progress indexing pass.
func (reg *Registry) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	reg.mu.Lock()
	reg.watcher = watcher
	dirs := make(map[string]struct{})
	for path := range reg.tables {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	reg.mu.Unlock()

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			if reg.logger != nil {
				reg.logger.WithError(err).WithField("directory", dir).Warn("mapping: failed to watch directory for hot-reload")
			}
		}
	}

	go reg.watchLoop(watcher)
	return nil
}

// Close stops the hot-reload watcher, if one was started.
func (reg *Registry) Close() error {
	reg.mu.Lock()
	w := reg.watcher
	reg.watcher = nil
	reg.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

func (reg *Registry) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reg.reload(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if reg.logger != nil {
				reg.logger.WithError(err).Warn("mapping: watcher error")
			}
		}
	}
}

func (reg *Registry) reload(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	reg.mu.Lock()
	cached, tracked := reg.tables[abs]
	reg.mu.Unlock()
	if !tracked {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if reg.logger != nil {
			reg.logger.WithError(err).WithField("path", path).Warn("mapping: failed to re-read changed file")
		}
		return
	}
	newHash := xxhash.Sum64(data)

	reg.mu.Lock()
	unchanged := reg.hashes[abs] == newHash
	reg.mu.Unlock()
	if unchanged {
		return
	}

	table, err := parseTable(path, bytes.NewReader(data))
	if err != nil {
		if reg.logger != nil {
			reg.logger.WithError(err).WithField("path", path).Warn("mapping: failed to reparse changed file, keeping previous table")
		}
		return
	}

	cached.replaceFrom(table)
	reg.mu.Lock()
	reg.hashes[abs] = newHash
	reg.mu.Unlock()
	if reg.logger != nil {
		reg.logger.WithField("path", path).Info("mapping: hot-reloaded table")
	}
}
