package sqlstore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"sharddb/pkg/dberrors"
	"sharddb/pkg/store"
)

const (
	pqUniqueViolation    = pq.ErrorCode("23505")
	mysqlDuplicateEntry  = 1062
	mysqlDuplicateKeyRef = 1022
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// dialect renders structured statements for one SQL engine.
type dialect struct {
	name string
	// quote wraps a validated identifier.
	quote func(string) string
	// placeholder returns the bind marker of the n-th (1-based) argument.
	placeholder func(int) string
	// createSchema is the DDL template for KindCreateSchema.
	createSchema string
	// duplicate reports whether err is a primary key collision.
	duplicate func(error) bool
}

var dialects = map[string]dialect{
	"postgres": {
		name:         "postgres",
		quote:        func(s string) string { return `"` + s + `"` },
		placeholder:  func(n int) string { return fmt.Sprintf("$%d", n) },
		createSchema: "CREATE SCHEMA IF NOT EXISTS %s",
		duplicate: func(err error) bool {
			var pqErr *pq.Error
			return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
		},
	},
	"mysql": {
		name:         "mysql",
		quote:        func(s string) string { return "`" + s + "`" },
		placeholder:  func(int) string { return "?" },
		createSchema: "CREATE DATABASE IF NOT EXISTS %s",
		duplicate: func(err error) bool {
			var myErr *mysql.MySQLError
			return errors.As(err, &myErr) && (myErr.Number == mysqlDuplicateEntry || myErr.Number == mysqlDuplicateKeyRef)
		},
	},
}

func lookupDialect(name string) (dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return dialect{}, fmt.Errorf("%w: no SQL dialect for %q", store.ErrUnknownDriver, name)
	}
	return d, nil
}

func (d dialect) ident(name string) (string, error) {
	if !identifier.MatchString(name) {
		return "", fmt.Errorf("%w: invalid identifier %q", dberrors.ErrInvalidArgument, name)
	}
	return d.quote(name), nil
}

func (d dialect) table(stmt store.Statement) (string, error) {
	t, err := d.ident(stmt.Table)
	if err != nil {
		return "", err
	}
	if stmt.Schema == "" {
		return t, nil
	}
	s, err := d.ident(stmt.Schema)
	if err != nil {
		return "", err
	}
	return s + "." + t, nil
}

func (d dialect) columns(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		q, err := d.ident(n)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

// render turns stmt into SQL text and bind arguments.
func (d dialect) render(stmt store.Statement) (string, []any, error) {
	if err := stmt.Validate(); err != nil {
		return "", nil, err
	}

	switch stmt.Kind {
	case store.KindRaw:
		return stmt.Text, stmt.Args, nil

	case store.KindCreateSchema:
		s, err := d.ident(stmt.Schema)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf(d.createSchema, s), nil, nil

	case store.KindCreateTable:
		t, err := d.table(stmt)
		if err != nil {
			return "", nil, err
		}
		cols, err := d.columns(stmt.Columns)
		if err != nil {
			return "", nil, err
		}
		defs := make([]string, len(cols))
		for i, c := range cols {
			defs[i] = c + " BIGINT"
			if i == 0 {
				defs[i] += " PRIMARY KEY"
			}
		}
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t, strings.Join(defs, ", ")), nil, nil

	case store.KindInsert:
		t, err := d.table(stmt)
		if err != nil {
			return "", nil, err
		}
		cols, err := d.columns(stmt.Columns)
		if err != nil {
			return "", nil, err
		}
		marks := make([]string, len(cols))
		for i := range marks {
			marks[i] = d.placeholder(i + 1)
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t, strings.Join(cols, ", "), strings.Join(marks, ", ")), stmt.Args, nil

	case store.KindSelectAll:
		t, err := d.table(stmt)
		if err != nil {
			return "", nil, err
		}
		cols, err := d.columns(stmt.Columns)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(cols, ", "), t, cols[0]), nil, nil
	}

	return "", nil, fmt.Errorf("%w: %s", store.ErrUnsupportedStatement, stmt.Kind)
}

// classify maps driver errors onto the dberrors taxonomy.
func (d dialect) classify(err error) error {
	if err == nil {
		return nil
	}
	if d.duplicate(err) {
		return fmt.Errorf("%w: %v", dberrors.ErrDuplicateKey, err)
	}
	return err
}
