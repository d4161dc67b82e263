package funes

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// HistoryObjectName is the vault object holding a host's run history.
const HistoryObjectName = "history.db"

// ErrNoVault is returned by Publish and Fetch when no vault is configured.
var ErrNoVault = errors.New("no vault configured")

// ObjectKey returns the vault key a run's output file is published under.
func ObjectKey(hostID, runID, filename string) string {
	return path.Join(hostID, runID, filepath.Base(filename))
}

// HistoryKey returns the vault key of a host's published run history.
func HistoryKey(hostID string) string {
	return path.Join(hostID, HistoryObjectName)
}

// Publish uploads a finished snapshot's archive and manifest to the vault
// under <hostID>/<runID>/<basename>, followed by a copy of the run history
// under <hostID>/history.db when a database is configured.
func (s *SnapshotService) Publish(hostID string, result *Result, archivePath, manifestPath string) error {
	if s.vault == nil {
		return ErrNoVault
	}

	for _, p := range []string{archivePath, manifestPath} {
		key := ObjectKey(hostID, result.RunID, p)
		if err := s.upload(key, p); err != nil {
			return err
		}
		s.logger.Info("published", "run_id", result.RunID, "key", key)
	}

	if s.database == nil {
		return nil
	}

	tmpDir, err := os.MkdirTemp("", "funes-history-")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, HistoryObjectName)
	if err := s.database.BackupTo(snapshot); err != nil {
		return fmt.Errorf("snapshotting history: %w", err)
	}

	key := HistoryKey(hostID)
	f, err := os.Open(snapshot)
	if err != nil {
		return fmt.Errorf("opening history snapshot: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat history snapshot: %w", err)
	}
	if err := s.vault.Put(key, f, info.Size()); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	s.logger.Info("published", "run_id", result.RunID, "key", key)
	return nil
}

func (s *SnapshotService) upload(key, p string) error {
	info, err := s.fsmgr.Stat(p)
	if err != nil {
		return fmt.Errorf("stat %s: %w", p, err)
	}
	f, err := s.fsmgr.Open(p)
	if err != nil {
		return fmt.Errorf("opening %s: %w", p, err)
	}
	defer f.Close()

	if err := s.vault.Put(key, f, info.Size()); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// ValidateVault verifies that the configured vault is reachable.
func (s *SnapshotService) ValidateVault() error {
	if s.vault == nil {
		return ErrNoVault
	}
	return s.vault.ValidateSetup()
}

// Fetch downloads the archive and manifest published for runID into destDir,
// keeping their original base names, and returns the local paths written.
// The run must be in the history database so its file names are known.
func (s *SnapshotService) Fetch(hostID, runID, destDir string) ([]string, error) {
	if s.vault == nil {
		return nil, ErrNoVault
	}
	run, _, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, p := range []string{run.ArchivePath, run.ManifestPath} {
		key := ObjectKey(hostID, run.ID, p)
		dest := filepath.Join(destDir, filepath.Base(p))
		if err := s.download(key, dest); err != nil {
			return written, err
		}
		written = append(written, dest)
		s.logger.Info("fetched", "run_id", run.ID, "key", key, "path", dest)
	}
	return written, nil
}

func (s *SnapshotService) download(key, dest string) (err error) {
	w, err := s.fsmgr.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing %s: %w", dest, cerr)
		}
	}()

	if err := s.vault.Get(key, w); err != nil {
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	return nil
}
