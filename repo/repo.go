package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kvrepo/kvrepo/bolt"
	"github.com/kvrepo/kvrepo/inmem"
	"github.com/kvrepo/kvrepo/kv"
	"github.com/kvrepo/kvrepo/leveldb"
	"github.com/kvrepo/kvrepo/migration"
)

const (
	configFile  = "config.json"
	versionFile = "version"
)

// ErrNotARepository is returned when the directory handed to Open does not
// hold a repository configuration.
var ErrNotARepository = errors.New("not a kvrepo repository")

// StoreConfig describes one configured store: its logical name, the backend
// kind that constructs it and the backend location relative to the
// repository directory. An empty path defaults to the store name.
type StoreConfig struct {
	Name    string `json:"name"`
	Backend string `json:"backend"`
	Path    string `json:"path,omitempty"`
}

// Config is the persisted repository configuration. Store order is
// significant: migrations process stores in configuration order.
type Config struct {
	Stores []StoreConfig `json:"stores"`
}

func (c Config) validate() error {
	seen := map[string]bool{}
	for _, store := range c.Stores {
		if store.Name == "" {
			return errors.New("store with empty name")
		}
		if seen[store.Name] {
			return fmt.Errorf("duplicate store %q", store.Name)
		}
		seen[store.Name] = true

		switch store.Backend {
		case bolt.Kind, leveldb.Kind, inmem.Kind:
		default:
			return fmt.Errorf("store %q: unknown backend kind %q", store.Name, store.Backend)
		}
	}
	return nil
}

// Repo is a directory holding a repository: a JSON configuration describing
// its stores, a persisted version number and the per-store backend data.
type Repo struct {
	dir    string
	cfg    Config
	logger *zap.Logger

	// memory backed stores live for the lifetime of the Repo so that
	// consecutive open/close cycles observe the same records.
	mem map[string]*inmem.KVStore
}

// Init creates a new repository at version 0 in dir, persisting the provided
// configuration. It fails if dir already holds a repository.
func Init(logger *zap.Logger, dir string, cfg Config) (*Repo, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, configFile)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("repository already exists at %s", dir)
	}

	data, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, err
	}

	repo := newRepo(logger, dir, cfg)
	if err := repo.SetVersion(0); err != nil {
		return nil, err
	}

	logger.Info("Repository initialized", zap.String("dir", dir), zap.Int("store_count", len(cfg.Stores)))
	return repo, nil
}

// Open loads the repository configuration persisted in dir.
func Open(logger *zap.Logger, dir string) (*Repo, error) {
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotARepository, dir)
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("reading repository config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("reading repository config: %w", err)
	}

	return newRepo(logger, dir, cfg), nil
}

func newRepo(logger *zap.Logger, dir string, cfg Config) *Repo {
	return &Repo{
		dir:    dir,
		cfg:    cfg,
		logger: logger,
		mem:    map[string]*inmem.KVStore{},
	}
}

// Dir returns the repository directory.
func (r *Repo) Dir() string { return r.dir }

// Stores returns the configured stores in configuration order.
func (r *Repo) Stores() []migration.StoreInfo {
	infos := make([]migration.StoreInfo, 0, len(r.cfg.Stores))
	for _, store := range r.cfg.Stores {
		infos = append(infos, migration.StoreInfo{
			Name:    store.Name,
			Backend: store.Backend,
		})
	}
	return infos
}

// Version reads the persisted repository version. A repository without a
// version file is at version 0.
func (r *Repo) Version() (int, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, versionFile))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	version, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("reading repository version: %w", err)
	}
	return version, nil
}

// SetVersion persists the repository version. Exactly one value is persisted
// at any time.
func (r *Repo) SetVersion(version int) error {
	return os.WriteFile(filepath.Join(r.dir, versionFile), []byte(strconv.Itoa(version)+"\n"), 0600)
}

// OpenStore constructs the named store from its configured backend kind and
// opens it. The caller owns the returned handle and must close it.
func (r *Repo) OpenStore(ctx context.Context, name string) (kv.Store, error) {
	for _, cfg := range r.cfg.Stores {
		if cfg.Name != name {
			continue
		}

		path := cfg.Path
		if path == "" {
			path = cfg.Name
		}
		path = filepath.Join(r.dir, path)

		var store kv.Store
		switch cfg.Backend {
		case bolt.Kind:
			store = bolt.NewKVStore(r.logger.With(zap.String("store", name)), path)
		case leveldb.Kind:
			store = leveldb.NewKVStore(r.logger.With(zap.String("store", name)), path)
		case inmem.Kind:
			mem, ok := r.mem[name]
			if !ok {
				mem = inmem.NewKVStore()
				r.mem[name] = mem
			}
			store = mem
		default:
			return nil, fmt.Errorf("store %q: unknown backend kind %q", name, cfg.Backend)
		}

		if err := store.Open(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}

	return nil, fmt.Errorf("store %q is not configured", name)
}
