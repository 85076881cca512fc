package port

import (
	"github.com/otaupdater/ota-download-manager/internal/domain/repository"
)

// TransferRepository is an alias to domain repository interface
type TransferRepository = repository.TransferRepository

// PreferenceRepository is an alias to domain repository interface
type PreferenceRepository = repository.PreferenceRepository

// CompletedFileRepository is an alias to domain repository interface
type CompletedFileRepository = repository.CompletedFileRepository

// Store is an alias to domain repository interface
type Store = repository.Store
