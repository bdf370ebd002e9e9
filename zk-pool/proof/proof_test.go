package proof

import (
	"os"
	"testing"

	"github.com/consensys/gnark-crypto/accumulator/merkletree"
	"github.com/holiman/uint256"
	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/crypto"
	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/kysee/zkpool/zk-pool/types"
	"github.com/stretchr/testify/require"
)

const testDepth = 4

var testParams *Params

func TestMain(m *testing.M) {
	var err error
	if testParams, err = Setup(testDepth); err != nil {
		panic(err)
	}
	if err := Init(testParams.VK, 16); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fullTree builds a tree of 2^depth leaves where leaf idx is cm.
func fullTree(t *testing.T, cm types.NoteCommitment, idx uint64) (types.Anchor, [][]byte) {
	tree := merkletree.New(utils.MiMCHasher())
	require.NoError(t, tree.SetIndex(idx))
	for i := uint64(0); i < 1<<testDepth; i++ {
		leaf := make([]byte, types.HashSize)
		if i == idx {
			copy(leaf, cm[:])
		} else {
			leaf[31] = byte(i + 1)
		}
		tree.Push(leaf)
	}
	root, path, _, _ := tree.Prove()
	require.Len(t, path, testDepth+1)
	return types.Anchor(root), path
}

func newWitness(t *testing.T, value uint64, pos uint64) (*SpendWitness, *crypto.SpendKey) {
	sk, err := crypto.NewSpendKey()
	require.NoError(t, err)
	note := types.NewNote(uint256.NewInt(value), sk.Ak(), sk.Nk())
	anchor, path := fullTree(t, note.Commitment(), pos)

	alpha, err := crypto.RandomScalar()
	require.NoError(t, err)
	blinding, err := crypto.RandomScalar()
	require.NoError(t, err)

	return &SpendWitness{
		Note:     note,
		Position: pos,
		Path:     path,
		Anchor:   anchor,
		Alpha:    alpha,
		Blinding: blinding,
	}, sk
}

func TestSpendProof(t *testing.T) {
	w, sk := newWitness(t, 100, 5)

	bzProof, stmt, err := ProveSpend(testParams, w)
	require.NoError(t, err)
	require.Equal(t, w.Note.Nullifier(5), stmt.Nullifier)
	require.NotEqual(t, sk.Ak(), stmt.Rk)

	require.NoError(t, VerifySpend(stmt.Anchor, stmt.BalanceCommitment, stmt.Nullifier, stmt.Rk, bzProof))
	// second time from the cache
	require.NoError(t, VerifySpend(stmt.Anchor, stmt.BalanceCommitment, stmt.Nullifier, stmt.Rk, bzProof))
	require.NoError(t, Verify(testParams.VK, stmt.Anchor, stmt.BalanceCommitment, stmt.Nullifier, stmt.Rk, bzProof))
}

func TestSpendProofTampered(t *testing.T) {
	w, _ := newWitness(t, 7, 0)
	bzProof, stmt, err := ProveSpend(testParams, w)
	require.NoError(t, err)

	verify := func(s SpendStatement, bz []byte) error {
		return VerifySpend(s.Anchor, s.BalanceCommitment, s.Nullifier, s.Rk, bz)
	}

	t.Run("wrong anchor", func(t *testing.T) {
		s := *stmt
		s.Anchor[31] ^= 0x01
		require.ErrorIs(t, verify(s, bzProof), poolerr.ErrProofInvalid)
	})
	t.Run("tampered nullifier", func(t *testing.T) {
		s := *stmt
		s.Nullifier = w.Note.Nullifier(1)
		require.ErrorIs(t, verify(s, bzProof), poolerr.ErrProofInvalid)
	})
	t.Run("other rk", func(t *testing.T) {
		s := *stmt
		s.Rk = w.Note.Ak
		require.ErrorIs(t, verify(s, bzProof), poolerr.ErrProofInvalid)
	})
	t.Run("other balance commitment", func(t *testing.T) {
		s := *stmt
		s.BalanceCommitment = crypto.CommitBalance(8, w.Blinding)
		require.ErrorIs(t, verify(s, bzProof), poolerr.ErrProofInvalid)
	})
	t.Run("malformed proof", func(t *testing.T) {
		require.ErrorIs(t, verify(*stmt, nil), poolerr.ErrProofInvalid)
		require.ErrorIs(t, verify(*stmt, []byte{1, 2, 3}), poolerr.ErrProofInvalid)
		require.ErrorIs(t, verify(*stmt, append(append([]byte{}, bzProof...), 0x00)), poolerr.ErrProofInvalid)
	})
	t.Run("non canonical nullifier", func(t *testing.T) {
		s := *stmt
		for i := range s.Nullifier {
			s.Nullifier[i] = 0xff
		}
		require.ErrorIs(t, verify(s, bzProof), poolerr.ErrProofInvalid)
	})
}

func TestProveWithWrongPath(t *testing.T) {
	w, _ := newWitness(t, 10, 3)

	// a path for another position does not lead to the anchor
	w.Position = 2
	_, _, err := ProveSpend(testParams, w)
	require.Error(t, err)

	// too short
	w.Position = 3
	w.Path = w.Path[:testDepth]
	_, _, err = ProveSpend(testParams, w)
	require.ErrorContains(t, err, "wrong merkle path length")
}

func TestParamsFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, testParams.Write(dir))

	loaded, err := LoadParams(dir)
	require.NoError(t, err)
	require.Equal(t, testDepth, loaded.Depth)

	w, _ := newWitness(t, 1, 9)
	bzProof, stmt, err := ProveSpend(loaded, w)
	require.NoError(t, err)
	require.NoError(t, Verify(testParams.VK, stmt.Anchor, stmt.BalanceCommitment, stmt.Nullifier, stmt.Rk, bzProof))

	path, err := testParams.ExportSolidity(dir)
	require.NoError(t, err)
	sol, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(sol), "pragma solidity")

	_, err = LoadParams(t.TempDir())
	require.Error(t, err)
}

func TestInitOnce(t *testing.T) {
	require.NotNil(t, Installed())
	require.ErrorIs(t, Init(testParams.VK, 0), poolerr.ErrPreconditionViolation)
}
