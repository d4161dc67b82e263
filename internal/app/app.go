package app

import (
	"fmt"
	"os"
	"time"

	"funes/internal/archive"
	"funes/internal/config"
	"funes/internal/database"
	"funes/internal/digest"
	"funes/internal/fs"
	"funes/internal/funes"
	"funes/internal/model"
	"funes/internal/vault"
)

// DefaultHostID names the host in vault keys and the history database when
// the config does not set one.
const DefaultHostID = "local"

// Options carries per-invocation overrides of the config.
type Options struct {
	Compression string // overrides [archive] compression when set
	Digest      string // overrides [archive] digest when set
	NoHistory   bool   // skip the run history database
	Stderr      *os.File
}

// FunesApp is the application layer between the CLI and SnapshotService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the DB and log lifecycle on Close.
type FunesApp struct {
	cfg      *config.Config
	hostID   string
	db       funes.Database
	vault    funes.Vault
	fsmgr    funes.FilesystemManager
	digester digest.Digester
	service  *funes.SnapshotService
	logFile  *os.File
}

// NewFunesApp creates a fully wired FunesApp from the given config.
// The caller must call Close when done.
func NewFunesApp(cfg *config.Config, opts Options) (*FunesApp, error) {
	// Without a flag or config setting the service infers compression from
	// each archive's file name.
	var compression archive.Compression
	if name := firstNonEmpty(opts.Compression, cfg.Archive.Compression); name != "" {
		var err error
		if compression, err = archive.ParseCompression(name); err != nil {
			return nil, err
		}
	}
	digester, err := digest.ForName(firstNonEmpty(opts.Digest, cfg.Archive.Digest))
	if err != nil {
		return nil, err
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	hostID := firstNonEmpty(cfg.HostID, DefaultHostID)
	fsmgr := fs.NewOSFilesystemManager(cfg.Filesystem.Ignore, cfg.Filesystem.IgnoreFile)

	var v funes.Vault
	if len(cfg.Vaults) > 0 {
		v, err = vault.NewVaultFromConfig(cfg.Vaults[0])
		if err != nil {
			return nil, fmt.Errorf("creating vault: %w", err)
		}
	}

	var db funes.Database
	if !opts.NoHistory {
		db, err = database.NewDatabaseFromConfig(cfg.Database, hostID)
		if err != nil {
			return nil, fmt.Errorf("creating database: %w", err)
		}
	}
	if db != nil {
		if err := db.CheckMigrations(); err != nil {
			db.Close()
			return nil, fmt.Errorf("database schema out of date: %w", err)
		}
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, level, stderr)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := funes.NewSnapshotService(fsmgr, db, v, &slogAdapter{l: logger}, funes.RealClock{}, funes.UUIDGenerator{}, funes.SnapshotOptions{
		Compression: compression,
		Digester:    digester,
	})

	return &FunesApp{
		cfg:      cfg,
		hostID:   hostID,
		db:       db,
		vault:    v,
		fsmgr:    fsmgr,
		digester: digester,
		service:  svc,
		logFile:  logFile,
	}, nil
}

// Snapshot archives inputDir into archivePath and writes the manifest to
// manifestPath. When publish is set the outputs and the run history are
// uploaded to the configured vault afterwards.
func (a *FunesApp) Snapshot(inputDir, archivePath, manifestPath string, publish bool) (*funes.Result, error) {
	if publish {
		if err := a.service.ValidateVault(); err != nil {
			return nil, fmt.Errorf("checking vault: %w", err)
		}
	}

	result, err := a.service.Snapshot(inputDir, archivePath, manifestPath)
	if err != nil {
		return nil, err
	}

	if publish {
		if err := a.service.Publish(a.hostID, result, archivePath, manifestPath); err != nil {
			return result, fmt.Errorf("publishing: %w", err)
		}
	}
	return result, nil
}

// Verify checks an archive against its manifest. An empty compression is
// detected from the archive's leading bytes.
func (a *FunesApp) Verify(archivePath, manifestPath, compression string) (*archive.VerifyReport, error) {
	var c archive.Compression
	if compression != "" {
		var err error
		if c, err = archive.ParseCompression(compression); err != nil {
			return nil, err
		}
	}

	af, err := a.fsmgr.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer af.Close()

	mf, err := a.fsmgr.Open(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer mf.Close()

	return archive.Verify(af, c, mf, a.digester)
}

// Fetch downloads a published run's archive and manifest into destDir,
// which is created if needed.
func (a *FunesApp) Fetch(runID, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", destDir, err)
	}
	return a.service.Fetch(a.hostID, runID, destDir)
}

// GetHistory returns the most recent runs.
func (a *FunesApp) GetHistory(limit int) ([]*model.Run, error) {
	return a.service.GetHistory(limit)
}

// GetRun returns a run and the files it archived.
func (a *FunesApp) GetRun(id string) (*model.Run, []*model.RunFile, error) {
	return a.service.GetRun(id)
}

// Close closes the database and the log file.
func (a *FunesApp) Close() error {
	var firstErr error

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}

	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}

	return firstErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
