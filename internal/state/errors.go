package state

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrTableMissing is returned when a date partition has not been created by
// the upstream harvester. The API layer maps this to HTTP 404.
var ErrTableMissing = errors.New("table missing")

// wrapTableMissing converts the SQLite "no such table" failure into
// ErrTableMissing so callers can branch on the partition being absent.
func wrapTableMissing(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return ErrTableMissing
	}
	return err
}
