package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
)

// classifyWriteErr maps driver errors on writes to the typed taxonomy.
// Missing tables or columns are schema mismatches (deployment-order bug, not
// retryable); everything else passes through for the caller to wrap.
func classifyWriteErr(table string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "has no column named") {
		return &domain.SchemaMismatchError{Table: table, Cause: err}
	}
	return err
}

// parseTimestamp parses a stored system timestamp.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(marketclock.TimestampFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// requireAffected converts a zero affected-row count into OperationFailed.
// A write that was expected to touch a row and touched none is a fail, never
// a silent no-op.
func requireAffected(op, table string, affected int64) error {
	if affected == 0 {
		return &domain.OperationFailedError{Op: op, Table: table}
	}
	return nil
}
