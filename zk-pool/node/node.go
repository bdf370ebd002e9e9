package node

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/action"
	"github.com/kysee/zkpool/zk-pool/event"
	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/kysee/zkpool/zk-pool/sct"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/kysee/zkpool/zk-pool/types"
	"github.com/rs/zerolog"
)

var keyHeight = []byte("node/height")

// TxResult is the outcome of a delivered transaction. A rejected transaction
// has a non-nil Err and changed nothing.
type TxResult struct {
	TxID    [types.HashSize]byte
	Code    string
	Err     error
	Version uint64
	Events  []store.Event
}

func (r *TxResult) IsOK() bool {
	return r.Err == nil
}

// Node executes blocks of transactions against the state store. It is the
// only writer of the store.
type Node struct {
	mtx sync.Mutex

	store    *store.Store
	tree     *sct.Tree
	pipeline *action.Pipeline
	bus      *event.Bus
	height   uint64

	logger zerolog.Logger
}

func New(st *store.Store, tree *sct.Tree, pipeline *action.Pipeline, bus *event.Bus) (*Node, error) {
	ctx := context.Background()

	snap, err := st.Snapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	if err := tree.CheckDepth(ctx, snap); err != nil {
		return nil, err
	}

	var height uint64
	bz, err := snap.Get(ctx, keyHeight)
	if err == nil {
		height = binary.BigEndian.Uint64(bz)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	return &Node{
		store:    st,
		tree:     tree,
		pipeline: pipeline,
		bus:      bus,
		height:   height,
		logger:   utils.NewLogger("node"),
	}, nil
}

func (n *Node) Height() uint64 {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.height
}

func (n *Node) Store() *store.Store {
	return n.store
}

func (n *Node) Tree() *sct.Tree {
	return n.tree
}

// Genesis appends the commitments of the initial notes and seals the first
// anchor. It returns the positions of the notes.
func (n *Node) Genesis(ctx context.Context, notes []*types.Note) ([]uint64, error) {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	if n.store.Version() != 0 {
		return nil, fmt.Errorf("genesis on a state of version %d", n.store.Version())
	}

	ws, err := n.store.BeginWrite(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := n.genesis(ctx, ws, notes)
	if err != nil {
		_ = ws.Discard()
		return nil, err
	}
	info, err := ws.Commit()
	if err != nil {
		return nil, err
	}

	n.height = 1
	n.logger.Info().Int("notes", len(notes)).Uint64("version", info.Version).Msg("genesis")
	return positions, nil
}

func (n *Node) genesis(ctx context.Context, ws *store.WriteScope, notes []*types.Note) ([]uint64, error) {
	if err := n.tree.Init(ctx, ws); err != nil {
		return nil, err
	}
	positions := make([]uint64, len(notes))
	for i, note := range notes {
		if err := note.Validate(); err != nil {
			return nil, fmt.Errorf("note %d: %w", i, err)
		}
		pos, err := n.tree.Append(ctx, ws, note.Commitment())
		if err != nil {
			return nil, err
		}
		positions[i] = pos
	}
	anchor, err := n.tree.SealAnchor(ctx, ws, 0)
	if err != nil {
		return nil, err
	}
	n.logger.Debug().Str("anchor", anchor.String()).Msg("genesis anchor")
	return positions, ws.Put(keyHeight, binary.BigEndian.AppendUint64(nil, 1))
}

// DeliverTx runs the transaction through every phase and commits it. A
// transaction rejected by a check returns a result with Err set; the error
// return is reserved for failures that must stop the block.
func (n *Node) DeliverTx(ctx context.Context, tx *action.Transaction) (*TxResult, error) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.deliverTx(ctx, tx)
}

func (n *Node) deliverTx(ctx context.Context, tx *action.Transaction) (*TxResult, error) {
	res := &TxResult{TxID: tx.ID()}
	logger := n.logger.With().Hex("tx", res.TxID[:8]).Logger()

	sc, err := n.pipeline.CheckStateless(ctx, tx)
	if err != nil {
		return n.reject(logger, res, err)
	}

	snap, err := n.store.Snapshot()
	if err != nil {
		return nil, err
	}
	checked, err := n.pipeline.CheckStateful(ctx, snap, sc)
	snap.Release()
	if err != nil {
		return n.reject(logger, res, err)
	}

	ws, err := n.store.BeginWrite(ctx)
	if err != nil {
		return nil, err
	}
	if err := n.pipeline.Execute(ctx, ws, checked, n.height); err != nil {
		if derr := ws.Discard(); derr != nil {
			return nil, derr
		}
		return n.reject(logger, res, err)
	}
	info, err := ws.Commit()
	if err != nil {
		logger.Error().Err(err).Msg("commit failed")
		return nil, err
	}

	// only committed events are published
	n.bus.Publish(info)

	res.Code = poolerr.Code(nil)
	res.Version, res.Events = info.Version, info.Events
	txTotal.WithLabelValues(res.Code).Inc()
	logger.Debug().Int("actions", len(tx.Actions)).Uint64("version", info.Version).Msg("tx committed")
	return res, nil
}

func (n *Node) reject(logger zerolog.Logger, res *TxResult, err error) (*TxResult, error) {
	code := poolerr.Code(err)
	if poolerr.IsFatal(err) || code == "Internal" {
		logger.Error().Err(err).Msg("tx failed")
		txTotal.WithLabelValues(code).Inc()
		return nil, err
	}
	res.Code, res.Err = code, err
	txTotal.WithLabelValues(code).Inc()
	logger.Info().Err(err).Str("code", code).Msg("tx rejected")
	return res, nil
}

// EndBlock seals the current tree root as the anchor of the block and moves
// to the next height.
func (n *Node) EndBlock(ctx context.Context) (types.Anchor, error) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.endBlock(ctx)
}

func (n *Node) endBlock(ctx context.Context) (types.Anchor, error) {
	ws, err := n.store.BeginWrite(ctx)
	if err != nil {
		return types.Anchor{}, err
	}
	anchor, err := n.tree.SealAnchor(ctx, ws, n.height)
	if err == nil {
		err = ws.Put(keyHeight, binary.BigEndian.AppendUint64(nil, n.height+1))
	}
	if err != nil {
		_ = ws.Discard()
		return types.Anchor{}, err
	}
	if _, err := ws.Commit(); err != nil {
		return types.Anchor{}, err
	}

	n.logger.Debug().Uint64("height", n.height).Str("anchor", anchor.String()).Msg("block sealed")
	n.height++
	return anchor, nil
}

// ApplyBlock delivers txs in order and ends the block. It stops at the first
// fatal failure.
func (n *Node) ApplyBlock(ctx context.Context, txs []*action.Transaction) ([]*TxResult, types.Anchor, error) {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	results := make([]*TxResult, 0, len(txs))
	for i, tx := range txs {
		res, err := n.deliverTx(ctx, tx)
		if err != nil {
			return results, types.Anchor{}, fmt.Errorf("tx %d: %w", i, err)
		}
		results = append(results, res)
	}
	anchor, err := n.endBlock(ctx)
	return results, anchor, err
}
