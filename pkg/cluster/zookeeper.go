package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/goccy/go-yaml"
)

const (
	shardsNode   = "/shards"
	shardPrefix  = "shard-"
	sequenceSize = 10
)

var ErrTopologyPublished = errors.New("cluster: topology already published")

// ZKTopology stores shard descriptors as sequential znodes under
// <root>/shards. The sequence numbers fix the topology order.
type ZKTopology struct {
	conn     *zk.Conn
	rootPath string
	logger   *slog.Logger
}

// servers: ["zk1:2181", "zk2:2181"]
func NewZKTopology(servers []string, rootPath string, sessionTimeout time.Duration, logger *slog.Logger) (*ZKTopology, error) {
	if sessionTimeout <= 0 {
		sessionTimeout = 5 * time.Second
	}
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ZKTopology{
		conn:     conn,
		rootPath: strings.TrimRight(rootPath, "/"),
		logger:   logger.With("component", "zk"),
	}, nil
}

func (m *ZKTopology) Close() error {
	m.conn.Close()
	return nil
}

// Load reads the published topology once.
func (m *ZKTopology) Load(ctx context.Context) (*Topology, error) {
	if err := m.waitConnected(ctx); err != nil {
		return nil, err
	}

	children, _, err := m.conn.Children(m.rootPath + shardsNode)
	if err != nil {
		return nil, fmt.Errorf("zk children: %w", err)
	}
	children = sortBySequence(children)

	descs := make([]Descriptor, 0, len(children))
	for _, child := range children {
		data, _, err := m.conn.Get(m.rootPath + shardsNode + "/" + child)
		if err != nil {
			return nil, fmt.Errorf("zk get %s: %w", child, err)
		}
		d, err := decodeDescriptor(data)
		if err != nil {
			return nil, fmt.Errorf("zk node %s: %w", child, err)
		}
		descs = append(descs, d)
	}

	topo, err := NewTopology(descs...)
	if err != nil {
		return nil, err
	}
	m.logger.Info("topology loaded", "root", m.rootPath, "shards", topo.Len())
	return topo, nil
}

// Publish writes topo in order, atomically. It refuses to overwrite an
// existing topology.
func (m *ZKTopology) Publish(ctx context.Context, topo *Topology) error {
	if err := m.waitConnected(ctx); err != nil {
		return err
	}
	if err := m.ensurePath(m.rootPath + shardsNode); err != nil {
		return fmt.Errorf("ensure shards path: %w", err)
	}

	existing, _, err := m.conn.Children(m.rootPath + shardsNode)
	if err != nil {
		return fmt.Errorf("zk children: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %d shards under %s", ErrTopologyPublished, len(existing), m.rootPath)
	}

	ops, err := createRequests(m.rootPath+shardsNode, topo)
	if err != nil {
		return err
	}
	// One multi-op: either every shard node exists afterwards or none does.
	resps, err := m.conn.Multi(ops...)
	if err != nil {
		return fmt.Errorf("create shard nodes: %w", err)
	}
	for i, resp := range resps {
		m.logger.Info("published shard", "shard", topo.At(i).ID, "path", resp.String)
	}
	return nil
}

// createRequests builds one sequential create per shard, in topology order.
func createRequests(shardsPath string, topo *Topology) ([]any, error) {
	ops := make([]any, 0, topo.Len())
	for i := range topo.Len() {
		data, err := encodeDescriptor(topo.At(i))
		if err != nil {
			return nil, err
		}
		ops = append(ops, &zk.CreateRequest{
			Path:  shardsPath + "/" + shardPrefix,
			Data:  data,
			Acl:   zk.WorldACL(zk.PermAll),
			Flags: zk.FlagSequence,
		})
	}
	return ops, nil
}

func (m *ZKTopology) ensurePath(path string) error {
	parts := strings.Split(path, "/")
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = cur + "/" + p
		exists, _, err := m.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = m.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && !errors.Is(err, zk.ErrNodeExists) {
				return err
			}
		}
	}
	return nil
}

func (m *ZKTopology) waitConnected(ctx context.Context) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := m.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("zk: not connected, state=%v: %w", st, ctx.Err())
		case <-ticker.C:
		}
	}
}

func encodeDescriptor(d Descriptor) ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode shard %s: %w", d.ID, err)
	}
	return data, nil
}

func decodeDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("decode descriptor: %w", err)
	}
	if d.ID == "" {
		return Descriptor{}, fmt.Errorf("decode descriptor: missing id")
	}
	return d, nil
}

// sortBySequence orders sequential znode names by their numeric suffix.
// Names without a well-formed suffix sort last, by name.
func sortBySequence(children []string) []string {
	out := slices.Clone(children)
	sort.SliceStable(out, func(i, j int) bool {
		si, oki := sequenceOf(out[i])
		sj, okj := sequenceOf(out[j])
		switch {
		case oki && okj && si != sj:
			return si < sj
		case oki != okj:
			return oki
		default:
			return out[i] < out[j]
		}
	})
	return out
}

func sequenceOf(name string) (uint64, bool) {
	if len(name) < sequenceSize {
		return 0, false
	}
	v, err := strconv.ParseUint(name[len(name)-sequenceSize:], 10, 64)
	return v, err == nil
}
