package notes

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// BatchError is returned when the table fails partway through a batch.
// Entries before Index have already been applied and stay applied.
type BatchError struct {
	Index   int
	ID      int64
	Op      Operation
	Applied int
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch entry %d (%s id=%d): %v", e.Index, e.Op, e.ID, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Unavailable reports whether err means the table could not be reached
// right now, as opposed to the statement itself failing.
func Unavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.AdminShutdown, pgerrcode.CrashShutdown, pgerrcode.CannotConnectNow:
			return true
		}
		return pgerrcode.IsConnectionException(pgErr.Code)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func storageStatus(err error) int {
	if Unavailable(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
