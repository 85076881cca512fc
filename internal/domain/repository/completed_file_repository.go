package repository

import "context"

// CompletedFileRepository remembers finished downloads whose transfer
// record may later be pruned, so the files are never mistaken for orphans.
type CompletedFileRepository interface {
	// KeepCompletedFiles records paths. Recording a known path is a no-op.
	KeepCompletedFiles(ctx context.Context, paths []string) error

	// CompletedFiles returns every recorded path.
	CompletedFiles(ctx context.Context) ([]string, error)

	// ForgetCompletedFiles drops paths from the record.
	ForgetCompletedFiles(ctx context.Context, paths []string) error
}
