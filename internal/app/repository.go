// Package app implements engine use cases and defines ports (repository interfaces).
package app

import (
	"github.com/jaakkos/taskmill/internal/domain"
)

// StateRepository loads and saves the full engine state.
// Implementation: internal/repository/sqlite.
type StateRepository interface {
	Load() (*domain.EngineState, error)
	Save(*domain.EngineState) error
}
