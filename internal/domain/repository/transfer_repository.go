package repository

import (
	"context"

	"github.com/otaupdater/ota-download-manager/internal/domain"
)

// TransferRepository persists the queue's durable snapshot.
type TransferRepository interface {
	// SaveSnapshot replaces the stored snapshot with snap.
	// A concurrent LoadSnapshot sees either the old or the new snapshot, never a mix.
	SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error

	// LoadSnapshot returns the stored snapshot.
	// An empty store yields an empty snapshot and no error.
	LoadSnapshot(ctx context.Context) (*domain.Snapshot, error)
}
