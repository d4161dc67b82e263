package funes

import (
	"errors"
	"fmt"

	"funes/internal/model"
)

// ErrNoHistory is returned by history queries when no database is configured.
var ErrNoHistory = errors.New("run history is disabled")

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// GetHistory returns the most recent runs, ordered newest first.
func (s *SnapshotService) GetHistory(limit int) ([]*model.Run, error) {
	if s.database == nil {
		return nil, ErrNoHistory
	}
	runs, err := s.database.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run and its files in archival order.
func (s *SnapshotService) GetRun(id string) (*model.Run, []*model.RunFile, error) {
	if s.database == nil {
		return nil, nil, ErrNoHistory
	}
	run, err := s.database.FindRun(id)
	if err != nil {
		return nil, nil, fmt.Errorf("finding run: %w", err)
	}
	if run == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	files, err := s.database.ListRunFiles(id)
	if err != nil {
		return nil, nil, fmt.Errorf("listing run files: %w", err)
	}
	return run, files, nil
}
