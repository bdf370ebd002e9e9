package sct

import (
	"context"
	"testing"

	"github.com/consensys/gnark-crypto/accumulator/merkletree"
	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/kysee/zkpool/zk-pool/types"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *store.Store {
	s, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func cmOf(i byte) types.NoteCommitment {
	return types.NoteCommitment(utils.MiMCHash32([]byte{i}))
}

func TestMarkSpent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	nf := types.Nullifier(utils.MiMCHash32([]byte("nf")))
	src := types.TransactionSource([32]byte{1}, 0, 1)

	ws, err := s.BeginWrite(ctx)
	require.NoError(t, err)

	// no source
	require.ErrorIs(t, MarkSpent(ctx, ws, nf, types.Source{}), poolerr.ErrPreconditionViolation)

	require.NoError(t, MarkSpent(ctx, ws, nf, src))
	// twice in one buffer
	require.ErrorIs(t, MarkSpent(ctx, ws, nf, src), poolerr.ErrDuplicateNullifierInBuffer)

	// not visible to committed readers before commit
	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.NoError(t, CheckUnspent(ctx, snap, nf))
	snap.Release()

	_, err = ws.Commit()
	require.NoError(t, err)

	snap, err = s.Snapshot()
	require.NoError(t, err)
	defer snap.Release()
	require.ErrorIs(t, CheckUnspent(ctx, snap, nf), poolerr.ErrNullifierAlreadySpent)
	got, found, err := SpendSource(ctx, snap, nf)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, src, got)

	// a committed nullifier is never overwritten
	ws, err = s.BeginWrite(ctx)
	require.NoError(t, err)
	err = MarkSpent(ctx, ws, nf, types.TransactionSource([32]byte{2}, 0, 2))
	require.ErrorIs(t, err, poolerr.ErrNullifierAlreadySpent)
	require.NoError(t, ws.Discard())

	_, found, err = SpendSource(ctx, snap, types.Nullifier{})
	require.NoError(t, err)
	require.False(t, found)
}

func TestTreeMatchesMerkleTree(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	tree, err := NewTree(3)
	require.NoError(t, err)

	ws, err := s.BeginWrite(ctx)
	require.NoError(t, err)

	empty, err := tree.Root(ctx, ws)
	require.NoError(t, err)

	cms := []types.NoteCommitment{cmOf(1), cmOf(2), cmOf(3)}
	for i, cm := range cms {
		pos, err := tree.Append(ctx, ws, cm)
		require.NoError(t, err)
		require.Equal(t, uint64(i), pos)
	}
	root, err := tree.Root(ctx, ws)
	require.NoError(t, err)
	require.NotEqual(t, empty, root)

	// the same leaves, padded with zero leaves, in gnark-crypto's tree
	ref := merkletree.New(utils.MiMCHasher())
	for i := uint64(0); i < tree.Capacity(); i++ {
		if i < uint64(len(cms)) {
			ref.Push(cms[i][:])
		} else {
			ref.Push(make([]byte, types.HashSize))
		}
	}
	require.Equal(t, ref.Root(), root[:])

	for i := range cms {
		anchor, path, err := tree.Witness(ctx, ws, uint64(i))
		require.NoError(t, err)
		require.Equal(t, root, anchor)
		require.Len(t, path, tree.Depth()+1)
		require.Equal(t, cms[i][:], path[0])
	}
	_, _, err = tree.Witness(ctx, ws, 3)
	require.Error(t, err)

	_, err = ws.Commit()
	require.NoError(t, err)
}

func TestTreeFull(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	tree, err := NewTree(1)
	require.NoError(t, err)

	ws, err := s.BeginWrite(ctx)
	require.NoError(t, err)
	defer ws.Discard()

	_, err = tree.Append(ctx, ws, cmOf(1))
	require.NoError(t, err)
	_, err = tree.Append(ctx, ws, cmOf(2))
	require.NoError(t, err)
	_, err = tree.Append(ctx, ws, cmOf(3))
	require.ErrorIs(t, err, poolerr.ErrTreeFull)

	_, err = NewTree(0)
	require.Error(t, err)
}

func TestAnchors(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	tree, err := NewTree(4)
	require.NoError(t, err)

	ws, err := s.BeginWrite(ctx)
	require.NoError(t, err)
	_, err = tree.Append(ctx, ws, cmOf(1))
	require.NoError(t, err)
	a0, err := tree.SealAnchor(ctx, ws, 0)
	require.NoError(t, err)
	_, err = ws.Commit()
	require.NoError(t, err)

	ws, err = s.BeginWrite(ctx)
	require.NoError(t, err)
	_, err = tree.Append(ctx, ws, cmOf(2))
	require.NoError(t, err)
	a1, err := tree.SealAnchor(ctx, ws, 1)
	require.NoError(t, err)
	_, err = ws.Commit()
	require.NoError(t, err)
	require.NotEqual(t, a0, a1)

	snap, err := s.Snapshot()
	require.NoError(t, err)

	// old anchors stay valid
	require.NoError(t, CheckClaimedAnchor(ctx, snap, a0))
	require.NoError(t, CheckClaimedAnchor(ctx, snap, a1))
	h, found, err := AnchorHeight(ctx, snap, a0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(0), h)

	latest, err := LatestAnchor(ctx, snap)
	require.NoError(t, err)
	require.Equal(t, a1, latest)
	snap.Release()

	// sealing an unchanged root keeps the first height
	ws, err = s.BeginWrite(ctx)
	require.NoError(t, err)
	again, err := tree.SealAnchor(ctx, ws, 2)
	require.NoError(t, err)
	require.Equal(t, a1, again)
	_, err = ws.Commit()
	require.NoError(t, err)

	snap, err = s.Snapshot()
	require.NoError(t, err)
	defer snap.Release()
	h, found, err = AnchorHeight(ctx, snap, a1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(1), h)

	// a made up root
	fake := a1
	fake[0], fake[1] = fake[1], fake[0]
	require.ErrorIs(t, CheckClaimedAnchor(ctx, snap, fake), poolerr.ErrUnknownAnchor)
}

func TestFakeMerklePath(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	tree, err := NewTree(3)
	require.NoError(t, err)

	ws, err := s.BeginWrite(ctx)
	require.NoError(t, err)
	defer ws.Discard()
	for i := byte(1); i <= 5; i++ {
		_, err = tree.Append(ctx, ws, cmOf(i))
		require.NoError(t, err)
	}
	root, path, err := tree.Witness(ctx, ws, 2)
	require.NoError(t, err)
	require.True(t, merkletree.VerifyProof(utils.MiMCHasher(), root[:], path, 2, tree.Capacity()))

	// a commitment that is not in the tree does not verify with a real path
	fake := append([][]byte{}, path...)
	nonExist := cmOf(100)
	fake[0] = nonExist[:]
	require.False(t, merkletree.VerifyProof(utils.MiMCHasher(), root[:], fake, 2, tree.Capacity()))

	// nor a real path at another position
	require.False(t, merkletree.VerifyProof(utils.MiMCHasher(), root[:], path, 3, tree.Capacity()))

	// a tree built by a faker has a root the chain never sealed
	faker := merkletree.New(utils.MiMCHasher())
	faker.Push(nonExist[:])
	for i := 1; i < 8; i++ {
		faker.Push(make([]byte, 32))
	}
	require.ErrorIs(t, CheckClaimedAnchor(ctx, ws, types.Anchor(faker.Root())), poolerr.ErrUnknownAnchor)
}
