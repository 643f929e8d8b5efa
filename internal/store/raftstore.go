package store

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/SrJCBM/BDD-Avanzada/pkg/kv"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/pkg/errors"
)

const (
	raftApplyTimeout = 10 * time.Second
	raftSnapRetain   = 2
	raftMaxPool      = 3
)

// RaftCommand represents a mutation to be applied via Raft.
type RaftCommand struct {
	Op      string   `json:"op"` // "set", "delete" or "sadd"
	Key     string   `json:"key,omitempty"`
	Value   string   `json:"value,omitempty"`
	Keys    []string `json:"keys,omitempty"`
	Members []string `json:"members,omitempty"`
}

// RaftStore wraps a MemStore and applies changes via Raft consensus.
// Reads are served from the local copy.
type RaftStore struct {
	store *MemStore
	raft  *raft.Raft
	close []func() error
}

var (
	_ kv.Store = (*RaftStore)(nil)
	_ raft.FSM = (*RaftStore)(nil)
)

func NewRaftStore(store *MemStore, r *raft.Raft) *RaftStore {
	return &RaftStore{store: store, raft: r}
}

// RaftOptions configures a Raft-backed store node.
type RaftOptions struct {
	NodeID    string
	BindAddr  string
	DataDir   string
	Bootstrap bool
}

// OpenRaftStore starts a Raft node persisting its log in raft-boltdb under
// DataDir. With Bootstrap set the node forms a single-member cluster.
func OpenRaftStore(opts RaftOptions) (*RaftStore, error) {
	if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "could not create raft dir %s", opts.DataDir)
	}

	conf := raft.DefaultConfig()
	conf.LocalID = raft.ServerID(opts.NodeID)

	addr, err := net.ResolveTCPAddr("tcp", opts.BindAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid raft address %s", opts.BindAddr)
	}
	transport, err := raft.NewTCPTransport(opts.BindAddr, addr, raftMaxPool, raftApplyTimeout, os.Stderr)
	if err != nil {
		return nil, errors.Wrap(err, "could not create raft transport")
	}

	snaps, err := raft.NewFileSnapshotStore(opts.DataDir, raftSnapRetain, os.Stderr)
	if err != nil {
		transport.Close()
		return nil, errors.Wrap(err, "could not create snapshot store")
	}

	boltStore, err := raftboltdb.NewBoltStore(filepath.Join(opts.DataDir, "raft.db"))
	if err != nil {
		transport.Close()
		return nil, errors.Wrap(err, "could not open raft log")
	}

	rs := &RaftStore{store: NewMemStore()}
	r, err := raft.NewRaft(conf, rs, boltStore, boltStore, snaps, transport)
	if err != nil {
		boltStore.Close()
		transport.Close()
		return nil, errors.Wrap(err, "could not start raft")
	}
	rs.raft = r
	rs.close = []func() error{transport.Close, boltStore.Close}

	if opts.Bootstrap {
		cfg := raft.Configuration{
			Servers: []raft.Server{{ID: conf.LocalID, Address: transport.LocalAddr()}},
		}
		// ErrCantBootstrap means the cluster state already exists on disk.
		if err := r.BootstrapCluster(cfg).Error(); err != nil && err != raft.ErrCantBootstrap {
			rs.Close()
			return nil, errors.Wrap(err, "could not bootstrap raft cluster")
		}
	}

	return rs, nil
}

// GetRaft returns the underlying raft.Raft pointer (for API layer leader checks)
func (rs *RaftStore) GetRaft() *raft.Raft {
	return rs.raft
}

// IsLeader reports whether this node currently accepts writes.
func (rs *RaftStore) IsLeader() bool {
	return rs.raft != nil && rs.raft.State() == raft.Leader
}

// LeaderAddr returns the Raft address of the current leader, or "" if unknown.
func (rs *RaftStore) LeaderAddr() string {
	if rs.raft == nil {
		return ""
	}
	addr, _ := rs.raft.LeaderWithID()
	return string(addr)
}

// Apply applies a Raft log entry to the local store.
func (rs *RaftStore) Apply(log *raft.Log) interface{} {
	var cmd RaftCommand
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return err
	}
	ctx := context.Background()
	switch cmd.Op {
	case "set":
		return rs.store.Set(ctx, cmd.Key, cmd.Value)
	case "delete":
		return rs.store.Delete(ctx, cmd.Keys...)
	case "sadd":
		return rs.store.SAdd(ctx, cmd.Key, cmd.Members...)
	}
	return errors.Errorf("unknown raft command %q", cmd.Op)
}

// Snapshot captures the whole local store.
func (rs *RaftStore) Snapshot() (raft.FSMSnapshot, error) {
	return &memFSMSnapshot{snap: rs.store.dump()}, nil
}

// Restore replaces the local store with a snapshot.
func (rs *RaftStore) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var snap memSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return errors.Wrap(err, "could not decode raft snapshot")
	}
	rs.store.load(snap)
	return nil
}

type memFSMSnapshot struct {
	snap memSnapshot
}

func (n *memFSMSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(n.snap); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (n *memFSMSnapshot) Release() {}

func (rs *RaftStore) apply(cmd RaftCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	f := rs.raft.Apply(data, raftApplyTimeout)
	if err := f.Error(); err != nil {
		return err
	}
	if err, ok := f.Response().(error); ok {
		return err
	}
	return nil
}

// Set submits a set command to Raft.
func (rs *RaftStore) Set(_ context.Context, key, value string) error {
	return rs.apply(RaftCommand{Op: "set", Key: key, Value: value})
}

// Delete submits a delete command to Raft.
func (rs *RaftStore) Delete(_ context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return rs.apply(RaftCommand{Op: "delete", Keys: keys})
}

// SAdd submits a set-add command to Raft.
func (rs *RaftStore) SAdd(_ context.Context, key string, members ...string) error {
	return rs.apply(RaftCommand{Op: "sadd", Key: key, Members: members})
}

// Get reads directly from the local store.
func (rs *RaftStore) Get(ctx context.Context, key string) (string, bool, error) {
	return rs.store.Get(ctx, key)
}

func (rs *RaftStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return rs.store.Keys(ctx, pattern)
}

func (rs *RaftStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return rs.store.SMembers(ctx, key)
}

// Close shuts the Raft node down and releases its log and transport.
func (rs *RaftStore) Close() error {
	var first error
	if rs.raft != nil {
		first = rs.raft.Shutdown().Error()
	}
	for _, c := range rs.close {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	if err := rs.store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
