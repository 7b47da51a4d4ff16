package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

// PostgreSQL error codes treated as write conflicts.
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// classify annotates err with the failing operation. Unique violations,
// serialization failures and deadlocks become ErrConflict.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation, pqSerializationFailure, pqDeadlockDetected:
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, op+": conflicting write")
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
