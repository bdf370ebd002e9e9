package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/kysee/zkpool/utils"
	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store is closed")

	keyVersion = []byte("meta/version")
	keyRoot    = []byte("meta/root")
)

// StateRead is the read side of the state contract.
type StateRead interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Has(ctx context.Context, key []byte) (bool, error)
}

// StateWrite is a buffered write scope. Reads see staged writes first.
type StateWrite interface {
	StateRead
	// Staged reports whether key was written in this scope.
	Staged(key []byte) (bool, error)
	Put(key, value []byte) error
	AppendEvent(ev Event) error
}

// Store is a versioned key-value store over leveldb. Every commit bumps the
// version and chains a new root over the previous root, the written pairs and
// the emitted events. There is at most one open WriteScope at a time.
type Store struct {
	db     *leveldb.DB
	writer chan struct{}

	mtx     sync.RWMutex
	version uint64
	root    [32]byte
	closed  bool
	sync    bool

	logger zerolog.Logger
}

// Open opens a store in path. An empty path opens an in-memory store.
func Open(path string) (*Store, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	s := &Store{
		db:     db,
		writer: make(chan struct{}, 1),
		logger: utils.NewLogger("store"),
	}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	bz, err := s.db.Get(keyVersion, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if len(bz) != 8 {
		return fmt.Errorf("corrupted version record")
	}
	s.version = binary.BigEndian.Uint64(bz)

	bz, err = s.db.Get(keyRoot, nil)
	if err != nil {
		return fmt.Errorf("missing root of version %d: %w", s.version, err)
	}
	copy(s.root[:], bz)

	s.logger.Info().Uint64("version", s.version).Hex("root", s.root[:]).Msg("state store loaded")
	return nil
}

// SetSync makes every commit fsync before it returns.
func (s *Store) SetSync(on bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.sync = on
}

func (s *Store) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) Version() uint64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.version
}

func (s *Store) Root() [32]byte {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.root
}

// Snapshot returns a read handle over the committed state.
func (s *Store) Snapshot() (*Snapshot, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return &Snapshot{snap: snap, version: s.version}, nil
}

// BeginWrite opens the write scope. It blocks while another scope is open.
func (s *Store) BeginWrite(ctx context.Context) (*WriteScope, error) {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	snap, err := s.Snapshot()
	if err != nil {
		<-s.writer
		return nil, err
	}
	return newWriteScope(s, snap), nil
}

// Events returns the events committed at version.
func (s *Store) Events(version uint64) ([]Event, error) {
	iter := s.db.NewIterator(util.BytesPrefix(eventPrefix(version)), nil)
	defer iter.Release()

	var evs []Event
	for iter.Next() {
		ev, err := decodeEvent(iter.Value())
		if err != nil {
			return nil, err
		}
		evs = append(evs, *ev)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return evs, nil
}

// Snapshot is a read-only view of the state at one version.
type Snapshot struct {
	snap    *leveldb.Snapshot
	version uint64
}

var _ StateRead = (*Snapshot)(nil)

func (sn *Snapshot) Version() uint64 {
	return sn.version
}

func (sn *Snapshot) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bz, err := sn.snap.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return bz, err
}

func (sn *Snapshot) Has(ctx context.Context, key []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return sn.snap.Has(key, nil)
}

func (sn *Snapshot) Release() {
	sn.snap.Release()
}

func eventPrefix(version uint64) []byte {
	key := make([]byte, 0, 7+8+1)
	key = append(key, "events/"...)
	key = binary.BigEndian.AppendUint64(key, version)
	return append(key, '/')
}

func eventKey(version uint64, seq uint32) []byte {
	return binary.BigEndian.AppendUint32(eventPrefix(version), seq)
}
