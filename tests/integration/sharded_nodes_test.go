//go:build integration
// +build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	ihttp "sharddb/internal/http"
	"sharddb/pkg/cluster"
	"sharddb/pkg/executor"
	"sharddb/pkg/sharding"
	"sharddb/pkg/store"
	"sharddb/pkg/store/memstore"
	"sharddb/pkg/store/remote"
	"sharddb/pkg/types"
)

// testNode is a sharddb process in node mode serving one in-memory shard.
type testNode struct {
	shard types.Descriptor
	mem   *memstore.Backend
	srv   *httptest.Server
}

func startNode(t *testing.T, id types.ShardID) *testNode {
	t.Helper()

	mem := memstore.New()
	shard := types.Descriptor{ID: id, Driver: memstore.Driver, DSN: "mem:" + string(id)}

	topo, err := cluster.NewTopology(shard)
	if err != nil {
		t.Fatalf("node %s topology: %v", id, err)
	}
	router, err := cluster.NewRouter(topo, sharding.Modulo{}, nil)
	if err != nil {
		t.Fatalf("node %s router: %v", id, err)
	}
	db := cluster.NewShardedDB(router, executor.New(store.NewMux().Register(memstore.Driver, mem)))

	srv := httptest.NewServer(ihttp.NewServer(db, "", ihttp.WithLocalShard(mem, shard)).Handler())
	t.Cleanup(srv.Close)
	return &testNode{shard: shard, mem: mem, srv: srv}
}

// records reads the node's shard directly, bypassing HTTP.
func (n *testNode) records(t *testing.T) []int64 {
	t.Helper()

	ctx := context.Background()
	conn, err := n.mem.Open(ctx, n.shard)
	if err != nil {
		t.Fatalf("open %s: %v", n.shard.ID, err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, store.SelectUsers(""))
	if err != nil {
		t.Fatalf("query %s: %v", n.shard.ID, err)
	}
	data, err := store.Collect(rows, len(store.UserColumns))
	if err != nil {
		t.Fatalf("collect %s: %v", n.shard.ID, err)
	}
	ids := make([]int64, 0, len(data))
	for _, row := range data {
		ids = append(ids, row[0])
	}
	return ids
}

func startGateway(t *testing.T, nodes ...*testNode) *httptest.Server {
	t.Helper()

	descriptors := make([]cluster.Descriptor, 0, len(nodes))
	for _, n := range nodes {
		descriptors = append(descriptors, cluster.Descriptor{ID: n.shard.ID, Driver: remote.Driver, DSN: n.srv.URL})
	}
	topo, err := cluster.NewTopology(descriptors...)
	if err != nil {
		t.Fatalf("gateway topology: %v", err)
	}
	router, err := cluster.NewRouter(topo, sharding.Parity{}, nil)
	if err != nil {
		t.Fatalf("gateway router: %v", err)
	}
	mux := store.NewMux().Register(remote.Driver, remote.New(nil))
	db := cluster.NewShardedDB(router, executor.New(mux), cluster.WithParallelism(2))

	srv := httptest.NewServer(ihttp.NewServer(db, "").Handler())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, method, endpoint string, form url.Values) (int, ihttp.Response) {
	t.Helper()

	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		t.Fatalf("%s %s: %v", method, endpoint, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, endpoint, err)
	}
	defer resp.Body.Close()

	var out ihttp.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: decode: %v", method, endpoint, err)
	}
	return resp.StatusCode, out
}

func insertUser(t *testing.T, gateway string, id int) (int, ihttp.Response) {
	t.Helper()
	form := url.Values{"id": {strconv.Itoa(id)}, "age": {strconv.Itoa(20 + id)}}
	return call(t, http.MethodPut, gateway+"/api/users", form)
}

func TestGatewayOverNodes(t *testing.T) {
	shard1 := startNode(t, "shard1")
	shard2 := startNode(t, "shard2")
	gateway := startGateway(t, shard1, shard2).URL

	if code, resp := call(t, http.MethodPost, gateway+"/api/setup", nil); code != http.StatusOK {
		t.Fatalf("setup: %d %s", code, resp.Error)
	}

	for id := 1; id <= 20; id++ {
		if code, resp := insertUser(t, gateway, id); code != http.StatusOK {
			t.Fatalf("insert %d: %d %s", id, code, resp.Error)
		}
	}

	for _, id := range shard1.records(t) {
		if id%2 != 1 {
			t.Fatalf("shard1 holds even id %d", id)
		}
	}
	for _, id := range shard2.records(t) {
		if id%2 != 0 {
			t.Fatalf("shard2 holds odd id %d", id)
		}
	}
	if n1, n2 := len(shard1.records(t)), len(shard2.records(t)); n1 != 10 || n2 != 10 {
		t.Fatalf("expected 10+10 records, got %d+%d", n1, n2)
	}

	code, resp := call(t, http.MethodGet, gateway+"/api/users", nil)
	if code != http.StatusOK || resp.Status != ihttp.StatusSuccess {
		t.Fatalf("query: %d %+v", code, resp)
	}
	if len(resp.Records) != 20 {
		t.Fatalf("expected 20 records, got %d", len(resp.Records))
	}
	for _, r := range resp.Records {
		if r.Age != 20+r.ID {
			t.Fatalf("record %d has age %d", r.ID, r.Age)
		}
	}

	if code, _ := insertUser(t, gateway, 7); code != http.StatusConflict {
		t.Fatalf("duplicate insert through node: expected 409, got %d", code)
	}
}

func TestGatewayWithNodeDown(t *testing.T) {
	shard1 := startNode(t, "shard1")
	shard2 := startNode(t, "shard2")
	gateway := startGateway(t, shard1, shard2).URL

	call(t, http.MethodPost, gateway+"/api/setup", nil)
	for id := 1; id <= 4; id++ {
		insertUser(t, gateway, id)
	}

	shard2.srv.Close()

	code, resp := call(t, http.MethodGet, gateway+"/api/users", nil)
	if code != http.StatusOK || resp.Status != ihttp.StatusPartial {
		t.Fatalf("expected partial 200, got %d %s", code, resp.Status)
	}
	if len(resp.Records) != 2 {
		t.Fatalf("expected shard1's 2 records, got %+v", resp.Records)
	}
	if resp.Shards[1].ID != "shard2" || resp.Shards[1].Error == "" {
		t.Fatalf("expected shard2 failure, got %+v", resp.Shards[1])
	}

	if code, resp := insertUser(t, gateway, 6); code != http.StatusBadGateway || resp.Shard != "shard2" {
		t.Fatalf("insert to downed node: expected 502 on shard2, got %d %q", code, resp.Shard)
	}
	if code, _ := insertUser(t, gateway, 5); code != http.StatusOK {
		t.Fatalf("insert to live node: expected 200, got %d", code)
	}

	shard1.srv.Close()
	if code, _ := call(t, http.MethodGet, gateway+"/api/users", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("all nodes down: expected 503, got %d", code)
	}
}
