package funes

import "funes/internal/model"

// Database records the history of snapshot runs.
type Database interface {
	// CreateRun inserts a run record in the running state.
	CreateRun(run *model.Run) error

	// FinishRun updates the run's outcome and records its archived files
	// in a single transaction.
	FinishRun(run *model.Run, files []*model.RunFile) error

	// FindRun returns a run by ID, or nil if it does not exist.
	FindRun(id string) (*model.Run, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(limit int) ([]*model.Run, error)

	// ListRunFiles returns the files of a run in archival order.
	ListRunFiles(runID string) ([]*model.RunFile, error)

	// CheckMigrations verifies the schema is up to date.
	CheckMigrations() error

	// BackupTo writes a consistent copy of the database to destPath.
	BackupTo(destPath string) error

	// Close closes the database connection.
	Close() error
}
