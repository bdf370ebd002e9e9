package store

import (
	"context"
	"encoding/binary"
	"errors"
	"hash"
	"sync"

	"github.com/consensys/gnark-crypto/accumulator/merkletree"
	"github.com/kysee/zkpool/zk-pool/crypto"
	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/comparer"
	"github.com/syndtr/goleveldb/leveldb/memdb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"golang.org/x/crypto/blake2b"
)

// CommitInfo describes a committed write scope.
type CommitInfo struct {
	Version uint64
	Root    [32]byte
	Events  []Event
}

// WriteScope buffers writes and events on top of a snapshot of the committed
// state. It ends with exactly one Commit or Discard; after that every call
// fails with ErrScopeClosed.
type WriteScope struct {
	store *Store
	snap  *Snapshot

	mtx    sync.Mutex
	buf    *memdb.DB
	events []Event
	closed bool
}

var _ StateWrite = (*WriteScope)(nil)

func newWriteScope(s *Store, snap *Snapshot) *WriteScope {
	return &WriteScope{
		store: s,
		snap:  snap,
		buf:   memdb.New(comparer.DefaultComparer, 0),
	}
}

// Version is the version the scope will commit.
func (ws *WriteScope) Version() uint64 {
	return ws.snap.Version() + 1
}

func (ws *WriteScope) Get(ctx context.Context, key []byte) ([]byte, error) {
	ws.mtx.Lock()
	if ws.closed {
		ws.mtx.Unlock()
		return nil, poolerr.ErrScopeClosed
	}
	bz, err := ws.buf.Get(key)
	ws.mtx.Unlock()

	if err == nil {
		return bz, nil
	} else if !errors.Is(err, memdb.ErrNotFound) {
		return nil, err
	}
	return ws.snap.Get(ctx, key)
}

func (ws *WriteScope) Has(ctx context.Context, key []byte) (bool, error) {
	staged, err := ws.Staged(key)
	if err != nil || staged {
		return staged, err
	}
	return ws.snap.Has(ctx, key)
}

func (ws *WriteScope) Staged(key []byte) (bool, error) {
	ws.mtx.Lock()
	defer ws.mtx.Unlock()

	if ws.closed {
		return false, poolerr.ErrScopeClosed
	}
	return ws.buf.Contains(key), nil
}

func (ws *WriteScope) Put(key, value []byte) error {
	ws.mtx.Lock()
	defer ws.mtx.Unlock()

	if ws.closed {
		return poolerr.ErrScopeClosed
	}
	return ws.buf.Put(key, value)
}

func (ws *WriteScope) AppendEvent(ev Event) error {
	ws.mtx.Lock()
	defer ws.mtx.Unlock()

	if ws.closed {
		return poolerr.ErrScopeClosed
	}
	ev.Version = ws.Version()
	ev.Seq = uint32(len(ws.events))
	ws.events = append(ws.events, ev)
	return nil
}

// Commit writes the staged pairs and events in one batch.
func (ws *WriteScope) Commit() (*CommitInfo, error) {
	ws.mtx.Lock()
	defer ws.mtx.Unlock()

	if ws.closed {
		return nil, poolerr.ErrScopeClosed
	}
	defer ws.close()

	s := ws.store
	version := ws.Version()

	batch := new(leveldb.Batch)
	leaves := merkletree.New(newLeafHasher())
	prev := s.Root()
	leaves.Push(prev[:])

	iter := ws.buf.NewIterator(nil)
	for iter.Next() {
		k, v := iter.Key(), iter.Value()
		batch.Put(k, v)
		leaves.Push(kvLeaf(k, v))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}

	for _, ev := range ws.events {
		bz := ev.Bytes()
		batch.Put(eventKey(version, ev.Seq), bz)
		h := crypto.Blake2b256("zkpool.event", bz)
		leaves.Push(h[:])
	}

	var root [32]byte
	copy(root[:], leaves.Root())
	batch.Put(keyVersion, binary.BigEndian.AppendUint64(nil, version))
	batch.Put(keyRoot, root[:])

	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: s.sync}); err != nil {
		return nil, err
	}
	s.version, s.root = version, root

	s.logger.Debug().Uint64("version", version).Int("writes", batch.Len()-2).Int("events", len(ws.events)).Hex("root", root[:]).Msg("committed")
	return &CommitInfo{Version: version, Root: root, Events: ws.events}, nil
}

// Discard drops the staged writes and events.
func (ws *WriteScope) Discard() error {
	ws.mtx.Lock()
	defer ws.mtx.Unlock()

	if ws.closed {
		return poolerr.ErrScopeClosed
	}
	ws.close()
	return nil
}

func (ws *WriteScope) close() {
	ws.closed = true
	ws.buf.Reset()
	ws.snap.Release()
	<-ws.store.writer
}

func kvLeaf(k, v []byte) []byte {
	var l [8]byte
	binary.BigEndian.PutUint32(l[:4], uint32(len(k)))
	binary.BigEndian.PutUint32(l[4:], uint32(len(v)))
	h := crypto.Blake2b256("zkpool.kv", l[:], k, v)
	return h[:]
}

func newLeafHasher() hash.Hash {
	h, _ := blake2b.New256(nil)
	return h
}
