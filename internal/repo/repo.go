package repo

import "github.com/pkg/errors"

// Sentinel errors shared by the repositories.
var (
	ErrNotFound             = errors.New("record not found")
	ErrSchoolAlreadyClaimed = errors.New("school already claimed")
	ErrNoSeatsAvailable     = errors.New("no teacher seats available")
)
