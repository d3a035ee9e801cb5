package database

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/fulldump/annotationstore/archive"
)

const (
	StatusOpening   = "opening"
	StatusOperating = "operating"
	StatusClosing   = "closing"
)

type Config struct {
	// DocumentsDir holds the source documents (pdf files)
	DocumentsDir string

	// AnnotationsDir holds one annotation archive per document
	AnnotationsDir string

	LockTimeout time.Duration

	// OrphanAge is the age of temporary archives removed by Load, 0 disables the sweep
	OrphanAge time.Duration

	Logger *slog.Logger
}

type Database struct {
	config *Config
	logger *slog.Logger

	statusMutex sync.RWMutex
	status      string

	catalogMutex sync.Mutex
	catalog      *btree.BTreeG[string]

	Store *archive.Store
	Bulk  *archive.Bulk

	exit     chan struct{}
	stopOnce sync.Once
}

func NewDatabase(config *Config) *Database {

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := archive.NewStore(&archive.Config{
		Root:        config.AnnotationsDir,
		LockTimeout: config.LockTimeout,
		Logger:      logger,
	})

	return &Database{
		config:  config,
		logger:  logger,
		status:  StatusOpening,
		catalog: btree.NewOrderedG[string](16),
		Store:   store,
		Bulk:    archive.NewBulk(store),
		exit:    make(chan struct{}),
	}
}

func (db *Database) GetStatus() string {
	db.statusMutex.RLock()
	defer db.statusMutex.RUnlock()
	return db.status
}

func (db *Database) setStatus(status string) {
	db.statusMutex.Lock()
	db.status = status
	db.statusMutex.Unlock()
}

// Load prepares the storage directories and builds the document catalog.
func (db *Database) Load() error {

	db.logger.Info("loading database",
		"documents", db.config.DocumentsDir,
		"annotations", db.config.AnnotationsDir)

	for _, dir := range []string{db.config.DocumentsDir, db.config.AnnotationsDir} {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			db.setStatus(StatusClosing)
			return fmt.Errorf("create directory '%s': %w", dir, err)
		}
	}

	if db.config.OrphanAge > 0 {
		removed, err := archive.SweepOrphans(db.config.AnnotationsDir, db.config.OrphanAge)
		if err != nil {
			// not critical, orphans only waste space
			db.logger.Warn("sweep orphan archives", "err", err)
		}
		if len(removed) > 0 {
			db.logger.Info("orphan archives removed", "count", len(removed))
		}
	}

	t0 := time.Now()
	documents, err := db.Refresh()
	if err != nil {
		db.setStatus(StatusClosing)
		return err
	}
	db.logger.Info("catalog ready", "documents", len(documents), "took", time.Since(t0))

	db.setStatus(StatusOperating)

	return nil
}

// Refresh rescans the documents directory and returns the sorted catalog.
func (db *Database) Refresh() ([]string, error) {

	entries, err := os.ReadDir(db.config.DocumentsDir)
	if err != nil {
		return nil, fmt.Errorf("read documents directory: %w", err)
	}

	catalog := btree.NewOrderedG[string](16)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.EqualFold(archive.Ext(entry.Name()), "."+archive.DocumentExtension) {
			continue
		}
		catalog.ReplaceOrInsert(archive.Stem(entry.Name()) + "." + archive.DocumentExtension)
	}

	db.catalogMutex.Lock()
	db.catalog = catalog
	db.catalogMutex.Unlock()

	return db.Documents(), nil
}

// Documents returns the document names of the catalog in ascending order.
func (db *Database) Documents() []string {
	db.catalogMutex.Lock()
	defer db.catalogMutex.Unlock()

	documents := make([]string, 0, db.catalog.Len())
	db.catalog.Ascend(func(name string) bool {
		documents = append(documents, name)
		return true
	})
	return documents
}

// DocumentExists tells if the source document is present.
func (db *Database) DocumentExists(name string) (bool, error) {
	filename, err := archive.Resolve(db.config.DocumentsDir, name, archive.DocumentExtension)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat document: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

func (db *Database) Start() error {

	go func() {
		err := db.Load()
		if err != nil {
			db.logger.Error("load database", "err", err)
		}
	}()

	<-db.exit

	return nil
}

// Stop refuses new requests and releases Start. Archive operations are
// synchronous, nothing stays open between requests.
func (db *Database) Stop() error {
	db.setStatus(StatusClosing)
	db.stopOnce.Do(func() {
		close(db.exit)
	})
	db.logger.Info("database closed")
	return nil
}
