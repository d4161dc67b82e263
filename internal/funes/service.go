package funes

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"funes/internal/archive"
	"funes/internal/digest"
	"funes/internal/model"
)

// SnapshotOptions selects how a snapshot is encoded.
// An empty Compression is inferred from each archive's file name, falling
// back to gzip. A nil Digester selects md5.
type SnapshotOptions struct {
	Compression archive.Compression
	Digester    digest.Digester
}

// Result summarizes a successful snapshot.
type Result struct {
	RunID       string
	Compression archive.Compression
	FileCount   int
	TotalBytes int64
	Rows       []archive.ManifestRow
}

// SnapshotService is the orchestration layer that turns a directory into an
// archive and manifest pair, records the run and publishes the outputs.
type SnapshotService struct {
	fsmgr    FilesystemManager
	database Database
	vault    Vault
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	opts     SnapshotOptions
}

// NewSnapshotService creates a new SnapshotService with the provided dependencies.
// database and vault may be nil: runs are then not recorded and Publish fails.
// A nil logger, clock or idgen falls back to NopLogger, RealClock and UUIDGenerator.
func NewSnapshotService(fsmgr FilesystemManager, database Database, vault Vault, logger Logger, clock Clock, idgen IDGenerator, opts SnapshotOptions) *SnapshotService {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	if opts.Digester == nil {
		opts.Digester = digest.Default
	}
	return &SnapshotService{
		fsmgr:    fsmgr,
		database: database,
		vault:    vault,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		opts:     opts,
	}
}

// Snapshot archives every non-hidden regular file under rawRoot into
// archivePath and writes one manifest row per file to manifestPath.
//
// If rawRoot does not exist or is not a directory, ErrRootNotFound or
// ErrRootNotDirectory is returned and no output file is created. Any later
// failure aborts the run and leaves the partial outputs in place.
func (s *SnapshotService) Snapshot(rawRoot, archivePath, manifestPath string) (*Result, error) {
	root, err := s.fsmgr.Resolve(rawRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, rawRoot)
		}
		return nil, fmt.Errorf("resolving input directory: %w", err)
	}
	if !root.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDirectory, rawRoot)
	}

	entries, err := s.fsmgr.Enumerate(root)
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", rawRoot, err)
	}

	compression := s.compressionFor(archivePath)
	run := &model.Run{
		ID:           s.idgen.New(),
		Root:         rawRoot,
		ArchivePath:  archivePath,
		ManifestPath: manifestPath,
		Compression:  compression.String(),
		Digest:       s.opts.Digester.Name(),
		StartedAt:    s.clock.Now(),
		Status:       model.RunStatusRunning,
	}
	if s.database != nil {
		if err := s.database.CreateRun(run); err != nil {
			return nil, fmt.Errorf("recording run: %w", err)
		}
	}

	s.logger.Info("creating archive", "run_id", run.ID, "archive", archivePath, "manifest", manifestPath, "compression", compression, "files", len(entries))

	rec := &runRecorder{runID: run.ID, logger: s.logger}
	buildErr := s.write(root.String(), entries, archivePath, manifestPath, compression, rec)

	run.FileCount = int64(len(rec.rows))
	run.TotalBytes = rec.totalBytes
	run.FinishedAt = sql.NullTime{Time: s.clock.Now(), Valid: true}
	run.Status = model.RunStatusSuccess
	if buildErr != nil {
		run.Status = model.RunStatusError
		run.Error = buildErr.Error()
	}

	if s.database != nil {
		if err := s.database.FinishRun(run, rec.files); err != nil {
			if buildErr != nil {
				return nil, buildErr
			}
			return nil, fmt.Errorf("recording run: %w", err)
		}
	}

	if buildErr != nil {
		s.logger.Error("snapshot failed", "run_id", run.ID, "files", run.FileCount, "error", buildErr)
		return nil, buildErr
	}

	s.logger.Info("archive created", "run_id", run.ID, "archive", archivePath, "files", run.FileCount, "bytes", run.TotalBytes)

	return &Result{
		RunID:       run.ID,
		Compression: compression,
		FileCount:   len(rec.rows),
		TotalBytes:  rec.totalBytes,
		Rows:        rec.rows,
	}, nil
}

// compressionFor returns the configured compression, or the one named by
// the archive's extension when none is configured.
func (s *SnapshotService) compressionFor(archivePath string) archive.Compression {
	if s.opts.Compression != "" {
		return s.opts.Compression
	}
	return archive.CompressionFromPath(archivePath)
}

// write creates both outputs, runs the archive pipeline and closes
// everything. The first error wins.
func (s *SnapshotService) write(root string, entries []string, archivePath, manifestPath string, compression archive.Compression, rec *runRecorder) (err error) {
	af, err := s.fsmgr.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer func() {
		if cerr := af.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing archive: %w", cerr)
		}
	}()

	mf, err := s.fsmgr.Create(manifestPath)
	if err != nil {
		return fmt.Errorf("creating manifest: %w", err)
	}
	defer func() {
		if cerr := mf.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing manifest: %w", cerr)
		}
	}()

	aw, err := archive.NewWriter(af, compression)
	if err != nil {
		return err
	}
	mw, err := archive.NewManifestWriter(mf)
	if err != nil {
		aw.Close()
		return err
	}

	_, err = archive.Build(s.fsmgr, root, entries, aw, mw, archive.BuildOptions{
		Digester: s.opts.Digester,
		Observer: rec,
	})

	if cerr := aw.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("finalizing archive: %w", cerr)
	}
	if cerr := mw.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("flushing manifest: %w", cerr)
	}
	return err
}

// runRecorder collects the rows of a run as the pipeline emits them.
type runRecorder struct {
	runID      string
	logger     Logger
	rows       []archive.ManifestRow
	files      []*model.RunFile
	totalBytes int64
}

func (r *runRecorder) EntryAdded(entry string, row archive.ManifestRow) {
	r.files = append(r.files, &model.RunFile{
		RunID:        r.runID,
		Position:     int64(len(r.rows)),
		RelativePath: entry,
		Filename:     row.Filename,
		Checksum:     row.MD5,
		Size:         row.Filesize,
	})
	r.rows = append(r.rows, row)
	r.totalBytes += row.Filesize
	r.logger.Info("adding file", "path", entry, "size", row.Filesize)
}
