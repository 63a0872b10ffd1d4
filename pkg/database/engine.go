package database

import (
	stdsql "database/sql"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/albarami/qnwis/pkg/dataquery"
	"github.com/albarami/qnwis/pkg/models"
)

// namedParamRe mirrors pkg/config/validator.go's namedParamRe — the
// registry already rejects any template referencing an undeclared
// ":name" substitution, so by the time a definition reaches the engine
// every match here is guaranteed to have a bound value.
var namedParamRe = regexp.MustCompile(`:([a-zA-Z_][a-zA-Z0-9_]*)`)

// PostgresEngine implements dataquery.Engine by rewriting a query
// definition's ":name" placeholders into database/sql's positional "$N"
// form and running it through the pgx driver.
type PostgresEngine struct {
	client *Client
}

// NewPostgresEngine builds an Engine bound to client's connection pool.
func NewPostgresEngine(client *Client) *PostgresEngine {
	return &PostgresEngine{client: client}
}

// Run rewrites def.Template's named placeholders into positional ones in
// first-occurrence order, binds params in that order, and executes the
// statement bounded by statementTimeout.
func (e *PostgresEngine) Run(ctx context.Context, def *models.QueryDefinition, params map[string]any, statementTimeout time.Duration) (dataquery.RowIter, error) {
	stmt, args, err := bindNamed(def.Template, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataquery.ErrBackendFailure, err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, statementTimeout)
	rows, err := e.client.DB().QueryContext(queryCtx, stmt, args...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", dataquery.ErrBackendFailure, err)
	}
	return &postgresRowIter{rows: rows, cancel: cancel}, nil
}

// bindNamed rewrites every ":name" reference in template to a positional
// "$N" placeholder, returning the rewritten statement and the argument
// slice in the same order the placeholders appear. The same name used
// twice reuses its first assigned position, matching database/sql's
// positional-parameter semantics for repeated references.
func bindNamed(template string, params map[string]any) (string, []any, error) {
	positions := make(map[string]int)
	var args []any

	out := namedParamRe.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimPrefix(match, ":")
		if pos, ok := positions[name]; ok {
			return fmt.Sprintf("$%d", pos)
		}
		args = append(args, params[name])
		pos := len(args)
		positions[name] = pos
		return fmt.Sprintf("$%d", pos)
	})
	return out, args, nil
}

type postgresRowIter struct {
	rows   *stdsql.Rows
	cols   []string
	cancel context.CancelFunc
	err    error
	cur    models.Row
}

func (it *postgresRowIter) Next(ctx context.Context) bool {
	if it.cols == nil {
		cols, err := it.rows.Columns()
		if err != nil {
			it.err = err
			return false
		}
		it.cols = cols
	}

	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}

	vals := make([]any, len(it.cols))
	ptrs := make([]any, len(it.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := it.rows.Scan(ptrs...); err != nil {
		it.err = err
		return false
	}

	row := make(models.Row, len(it.cols))
	for i, col := range it.cols {
		row[col] = vals[i]
	}
	it.cur = row
	return true
}

func (it *postgresRowIter) Row() models.Row { return it.cur }
func (it *postgresRowIter) Err() error       { return it.err }

func (it *postgresRowIter) Close() error {
	it.cancel()
	return it.rows.Close()
}
