package sct

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/accumulator/merkletree"
	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/kysee/zkpool/zk-pool/types"
)

const MaxDepth = 32

var (
	prefixCommitment = []byte("sct/cm/")
	prefixNode       = []byte("sct/node/")
	prefixAnchor     = []byte("sct/anchor/")
	keySize          = []byte("sct/pos")
	keyDepth         = []byte("sct/depth")
	keyLatest        = []byte("sct/latest")
)

// Tree is the note commitment tree: a fixed-depth MiMC merkle tree kept in
// the state store. Leaves are MiMC(cm) and nodes MiMC(left, right), the same
// hashing the spend circuit verifies.
type Tree struct {
	depth int
	// zeros[i] is the root of an empty subtree of height i
	zeros [][]byte
}

func NewTree(depth int) (*Tree, error) {
	if depth <= 0 || depth > MaxDepth {
		return nil, fmt.Errorf("invalid tree depth %d", depth)
	}
	zeros := make([][]byte, depth+1)
	zeros[0] = utils.MiMCHash(make([]byte, types.HashSize))
	for i := 1; i <= depth; i++ {
		zeros[i] = utils.MiMCHash(zeros[i-1], zeros[i-1])
	}
	return &Tree{depth: depth, zeros: zeros}, nil
}

func (t *Tree) Depth() int {
	return t.depth
}

func (t *Tree) Capacity() uint64 {
	return uint64(1) << t.depth
}

// Init records the depth of the tree in a new state.
func (t *Tree) Init(ctx context.Context, write store.StateWrite) error {
	if err := t.CheckDepth(ctx, write); err != nil {
		return err
	}
	return write.Put(keyDepth, []byte{byte(t.depth)})
}

// CheckDepth fails if the state holds a tree of another depth.
func (t *Tree) CheckDepth(ctx context.Context, read store.StateRead) error {
	bz, err := read.Get(ctx, keyDepth)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if len(bz) != 1 || int(bz[0]) != t.depth {
		return fmt.Errorf("state holds a commitment tree of depth %v, not %d", bz, t.depth)
	}
	return nil
}

// Size is the number of appended commitments, i.e. the next position.
func (t *Tree) Size(ctx context.Context, read store.StateRead) (uint64, error) {
	bz, err := read.Get(ctx, keySize)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(bz), nil
}

func (t *Tree) Root(ctx context.Context, read store.StateRead) (types.Anchor, error) {
	bz, err := t.node(ctx, read, t.depth, 0)
	if err != nil {
		return types.Anchor{}, err
	}
	return types.Anchor(bz), nil
}

// Append adds cm at the next position and returns that position.
func (t *Tree) Append(ctx context.Context, write store.StateWrite, cm types.NoteCommitment) (uint64, error) {
	pos, err := t.Size(ctx, write)
	if err != nil {
		return 0, err
	}
	if pos >= t.Capacity() {
		return 0, poolerr.ErrTreeFull
	}

	if err := write.Put(commitmentKey(pos), cm[:]); err != nil {
		return 0, err
	}

	h := utils.MiMCHash(cm[:])
	idx := pos
	for level := 0; level < t.depth; level++ {
		if err := write.Put(nodeKey(level, idx), h); err != nil {
			return 0, err
		}
		sibling, err := t.node(ctx, write, level, idx^1)
		if err != nil {
			return 0, err
		}
		if idx&1 == 0 {
			h = utils.MiMCHash(h, sibling)
		} else {
			h = utils.MiMCHash(sibling, h)
		}
		idx >>= 1
	}
	if err := write.Put(nodeKey(t.depth, 0), h); err != nil {
		return 0, err
	}
	if err := write.Put(keySize, binary.BigEndian.AppendUint64(nil, pos+1)); err != nil {
		return 0, err
	}
	return pos, nil
}

func (t *Tree) Commitment(ctx context.Context, read store.StateRead, pos uint64) (types.NoteCommitment, error) {
	bz, err := read.Get(ctx, commitmentKey(pos))
	if err != nil {
		return types.NoteCommitment{}, fmt.Errorf("commitment at %d: %w", pos, err)
	}
	return types.NoteCommitment(bz), nil
}

// Witness returns the current root and the authentication path of the
// commitment at pos: path[0] is the commitment, path[i] the sibling at level i-1.
func (t *Tree) Witness(ctx context.Context, read store.StateRead, pos uint64) (types.Anchor, [][]byte, error) {
	size, err := t.Size(ctx, read)
	if err != nil {
		return types.Anchor{}, nil, err
	}
	if pos >= size {
		return types.Anchor{}, nil, fmt.Errorf("no commitment at position %d", pos)
	}
	cm, err := t.Commitment(ctx, read, pos)
	if err != nil {
		return types.Anchor{}, nil, err
	}

	path := make([][]byte, 0, t.depth+1)
	path = append(path, cm[:])
	idx := pos
	for level := 0; level < t.depth; level++ {
		sibling, err := t.node(ctx, read, level, idx^1)
		if err != nil {
			return types.Anchor{}, nil, err
		}
		path = append(path, sibling)
		idx >>= 1
	}

	root, err := t.Root(ctx, read)
	if err != nil {
		return types.Anchor{}, nil, err
	}
	if !merkletree.VerifyProof(utils.MiMCHasher(), root[:], path, pos, t.Capacity()) {
		return types.Anchor{}, nil, fmt.Errorf("inconsistent tree: witness of %d does not verify", pos)
	}
	return root, path, nil
}

// SealAnchor records the current root as an anchor created at height.
func (t *Tree) SealAnchor(ctx context.Context, write store.StateWrite, height uint64) (types.Anchor, error) {
	root, err := t.Root(ctx, write)
	if err != nil {
		return types.Anchor{}, err
	}
	if _, found, err := AnchorHeight(ctx, write, root); err != nil {
		return types.Anchor{}, err
	} else if !found {
		if err := write.Put(anchorKey(root), binary.BigEndian.AppendUint64(nil, height)); err != nil {
			return types.Anchor{}, err
		}
	}
	return root, write.Put(keyLatest, root[:])
}

// AnchorHeight returns the height at which anchor was first sealed.
func AnchorHeight(ctx context.Context, read store.StateRead, anchor types.Anchor) (uint64, bool, error) {
	bz, err := read.Get(ctx, anchorKey(anchor))
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	return binary.BigEndian.Uint64(bz), true, nil
}

// CheckClaimedAnchor fails with ErrUnknownAnchor unless anchor is a sealed root.
func CheckClaimedAnchor(ctx context.Context, read store.StateRead, anchor types.Anchor) error {
	_, found, err := AnchorHeight(ctx, read, anchor)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", poolerr.ErrUnknownAnchor, anchor)
	}
	return nil
}

func LatestAnchor(ctx context.Context, read store.StateRead) (types.Anchor, error) {
	bz, err := read.Get(ctx, keyLatest)
	if err != nil {
		return types.Anchor{}, err
	}
	return types.Anchor(bz), nil
}

func (t *Tree) node(ctx context.Context, read store.StateRead, level int, idx uint64) ([]byte, error) {
	bz, err := read.Get(ctx, nodeKey(level, idx))
	if errors.Is(err, store.ErrNotFound) {
		return t.zeros[level], nil
	}
	return bz, err
}

func commitmentKey(pos uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixCommitment...), pos)
}

func nodeKey(level int, idx uint64) []byte {
	key := append(append([]byte{}, prefixNode...), byte(level))
	return binary.BigEndian.AppendUint64(key, idx)
}

func anchorKey(anchor types.Anchor) []byte {
	return append(append([]byte{}, prefixAnchor...), anchor[:]...)
}
