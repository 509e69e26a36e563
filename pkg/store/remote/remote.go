// Package remote reaches shards hosted by a sharddb node over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"sharddb/pkg/dberrors"
	"sharddb/pkg/store"
	"sharddb/pkg/types"
)

const (
	Driver = "http"

	ExecPath  = "/api/internal/exec"
	QueryPath = "/api/internal/query"

	defaultTimeout = 5 * time.Second
)

// Request carries one statement to a node.
type Request struct {
	Statement store.Statement `json:"statement"`
}

// Response is the node's reply to Exec and Query calls.
type Response struct {
	Status       string    `json:"status"`
	RowsAffected int64     `json:"rows_affected,omitempty"`
	Rows         [][]int64 `json:"rows,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Backend opens HTTP connections. The descriptor's DSN is the node base URL.
type Backend struct {
	client *http.Client
}

// New returns a backend using client. A nil client, or one without a
// timeout, gets a copy bounded by a 5s timeout so a hung node cannot stall a
// fan-out.
func New(client *http.Client) *Backend {
	switch {
	case client == nil:
		client = &http.Client{Timeout: defaultTimeout}
	case client.Timeout <= 0:
		bounded := *client
		bounded.Timeout = defaultTimeout
		client = &bounded
	}
	return &Backend{client: client}
}

func (b *Backend) Open(ctx context.Context, shard types.Descriptor) (store.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := strings.TrimRight(shard.DSN, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("%w: shard %s dsn %q is not an http url", dberrors.ErrInvalidArgument, shard.ID, shard.DSN)
	}
	return &conn{baseURL: base, client: b.client}, nil
}

type conn struct {
	baseURL string
	client  *http.Client
	closed  atomic.Bool
}

func (c *conn) Exec(ctx context.Context, stmt store.Statement) (int64, error) {
	resp, err := c.call(ctx, ExecPath, stmt)
	if err != nil {
		return 0, err
	}
	return resp.RowsAffected, nil
}

func (c *conn) Query(ctx context.Context, stmt store.Statement) (store.Rows, error) {
	resp, err := c.call(ctx, QueryPath, stmt)
	if err != nil {
		return nil, err
	}
	return store.NewSliceRows(resp.Rows), nil
}

func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return dberrors.ErrClosed
	}
	return nil
}

func (c *conn) call(ctx context.Context, path string, stmt store.Statement) (Response, error) {
	if c.closed.Load() {
		return Response{}, dberrors.ErrClosed
	}

	body, err := json.Marshal(Request{Statement: stmt})
	if err != nil {
		return Response{}, fmt.Errorf("encode statement: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return Response{}, fmt.Errorf("POST %s failed with status %d: %s", path, resp.StatusCode, string(raw))
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, statusError(resp.StatusCode, out.Error)
	}
	return out, nil
}

// statusError maps a node's HTTP status back onto the error taxonomy.
func statusError(code int, msg string) error {
	var sentinel error
	switch code {
	case http.StatusConflict:
		sentinel = dberrors.ErrDuplicateKey
	case http.StatusBadRequest:
		sentinel = dberrors.ErrInvalidArgument
	case http.StatusNotFound:
		sentinel = store.ErrNoSuchTable
	case http.StatusNotImplemented:
		sentinel = store.ErrUnsupportedStatement
	default:
		return fmt.Errorf("node returned %d: %s", code, msg)
	}
	// The node's message usually starts with the sentinel text already.
	msg = strings.TrimPrefix(msg, sentinel.Error())
	msg = strings.TrimPrefix(msg, ": ")
	if msg == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

// StatusFor is the inverse of statusError, used by the serving side.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, dberrors.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, dberrors.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNoSuchTable):
		return http.StatusNotFound
	case errors.Is(err, store.ErrUnsupportedStatement):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
