package repository

import (
	"github.com/jaakkos/taskmill/internal/app"
	"github.com/jaakkos/taskmill/internal/repository/sqlite"
)

// NewStateRepository returns a StateRepository backed by SQLite at the given path.
// The path is typically from policy.StateFile() (default ~/.config/taskmill/state.sqlite).
func NewStateRepository(path string) (app.StateRepository, error) {
	return sqlite.New(path)
}
