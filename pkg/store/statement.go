package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"sharddb/pkg/dberrors"
	"sharddb/pkg/types"
)

// Kind is the structured shape of a statement. Backends that do not speak
// SQL dispatch on it; SQL backends render dialect-specific text from it.
type Kind int

const (
	KindRaw Kind = iota
	KindCreateSchema
	KindCreateTable
	KindInsert
	KindSelectAll
)

var kindNames = map[Kind]string{
	KindRaw:          "raw",
	KindCreateSchema: "create_schema",
	KindCreateTable:  "create_table",
	KindInsert:       "insert",
	KindSelectAll:    "select_all",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("%w: unknown statement kind %q", ErrUnsupportedStatement, text)
}

// Statement is one unit of work against a shard. Columns are BIGINT and the
// first column is the primary key. Text is only honoured for KindRaw.
type Statement struct {
	Kind    Kind     `json:"kind"`
	Schema  string   `json:"schema,omitempty"`
	Table   string   `json:"table,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Args    []any    `json:"args,omitempty"`
	Text    string   `json:"text,omitempty"`
}

func (s Statement) String() string {
	if s.Kind == KindRaw {
		return s.Text
	}
	return fmt.Sprintf("%s %s", s.Kind, QualifiedName(s.Schema, s.Table))
}

// QualifiedName joins schema and table with a dot when a schema is set.
func QualifiedName(schema, table string) string {
	if schema == "" {
		return table
	}
	if table == "" {
		return schema
	}
	return schema + "." + table
}

const UsersTable = "users"

var UserColumns = []string{"id", "age"}

func CreateSchema(schema string) Statement {
	return Statement{Kind: KindCreateSchema, Schema: schema}
}

func CreateUsersTable(schema string) Statement {
	return Statement{Kind: KindCreateTable, Schema: schema, Table: UsersTable, Columns: UserColumns}
}

func InsertUser(schema string, r types.Record) Statement {
	return Statement{Kind: KindInsert, Schema: schema, Table: UsersTable, Columns: UserColumns, Args: []any{r.ID, r.Age}}
}

func SelectUsers(schema string) Statement {
	return Statement{Kind: KindSelectAll, Schema: schema, Table: UsersTable, Columns: UserColumns}
}

// Validate checks the structural invariants of the statement.
func (s Statement) Validate() error {
	switch s.Kind {
	case KindRaw:
		if strings.TrimSpace(s.Text) == "" {
			return fmt.Errorf("%w: empty raw statement", dberrors.ErrInvalidArgument)
		}
	case KindCreateSchema:
		if s.Schema == "" {
			return fmt.Errorf("%w: schema name required", dberrors.ErrInvalidArgument)
		}
	case KindCreateTable, KindSelectAll:
		if s.Table == "" || len(s.Columns) == 0 {
			return fmt.Errorf("%w: table and columns required", dberrors.ErrInvalidArgument)
		}
	case KindInsert:
		if s.Table == "" || len(s.Columns) == 0 {
			return fmt.Errorf("%w: table and columns required", dberrors.ErrInvalidArgument)
		}
		if len(s.Args) != len(s.Columns) {
			return fmt.Errorf("%w: %d args for %d columns", dberrors.ErrInvalidArgument, len(s.Args), len(s.Columns))
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedStatement, s.Kind)
	}
	return nil
}

// Int64 coerces a statement argument to int64. It accepts Go integer kinds,
// integral float64 values and json.Number.
func Int64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", dberrors.ErrInvalidArgument, n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, fmt.Errorf("%w: %v is not an integer", dberrors.ErrInvalidArgument, n)
		}
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", dberrors.ErrInvalidArgument, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: %T is not an integer", dberrors.ErrInvalidArgument, v)
	}
}
