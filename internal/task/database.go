package task

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taskdeck/internal/core"

	// Drivers for the supported connection descriptors.
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// DatabaseRunner executes one SQL statement against a described
// connection. SELECT-like statements report the row count; everything
// else reports rows affected.
//
// Params: driver ∈ {sqlite, mysql} (required), dsn (required),
// statement (required).
type DatabaseRunner struct{}

var sqlDrivers = map[string]bool{"sqlite": true, "mysql": true}

func (r *DatabaseRunner) Validate(params map[string]any) error {
	driver, err := requireString(params, "driver")
	if err != nil {
		return err
	}
	if !sqlDrivers[driver] {
		return fmt.Errorf("unsupported driver %q", driver)
	}
	if _, err := requireString(params, "dsn"); err != nil {
		return err
	}
	if _, err := requireString(params, "statement"); err != nil {
		return err
	}
	return nil
}

func (r *DatabaseRunner) Run(ctx context.Context, t *core.Task, logf func(string, ...any)) core.RunResult {
	driver, _ := stringParam(t.Params, "driver")
	dsn, _ := stringParam(t.Params, "dsn")
	statement, _ := stringParam(t.Params, "statement")

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return failure("open %s: %v", driver, err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		return failure("connect: %v", err)
	}

	logf("db %s: %s", driver, statement)
	if isQuery(statement) {
		rows, err := db.QueryContext(ctx, statement)
		if err != nil {
			if ctx.Err() != nil {
				return cancelled()
			}
			return failure("query: %v", err)
		}
		defer rows.Close()
		count := 0
		for rows.Next() {
			count++
		}
		if err := rows.Err(); err != nil {
			return failure("scan: %v", err)
		}
		return core.RunResult{Outcome: core.OutcomeSuccess, Output: fmt.Sprintf("%d rows", count)}
	}

	res, err := db.ExecContext(ctx, statement)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		return failure("exec: %v", err)
	}
	affected, _ := res.RowsAffected()
	return core.RunResult{Outcome: core.OutcomeSuccess, Output: fmt.Sprintf("%d rows affected", affected)}
}

func isQuery(statement string) bool {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "PRAGMA", "SHOW", "EXPLAIN", "WITH":
		return true
	}
	return false
}
