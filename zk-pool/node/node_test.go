package node

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/kysee/zkpool/zk-pool/action"
	"github.com/kysee/zkpool/zk-pool/crypto"
	"github.com/kysee/zkpool/zk-pool/event"
	"github.com/kysee/zkpool/zk-pool/proof"
	"github.com/kysee/zkpool/zk-pool/prover"
	"github.com/kysee/zkpool/zk-pool/sct"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/kysee/zkpool/zk-pool/types"
	"github.com/stretchr/testify/require"
)

const (
	testDepth   = 4
	testChainID = "zkpool-test"
)

var testParams *proof.Params

func TestMain(m *testing.M) {
	var err error
	if testParams, err = proof.Setup(testDepth); err != nil {
		panic(err)
	}
	if err := proof.Init(testParams.VK, 0); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type recorder struct {
	mtx    sync.Mutex
	events []store.Event
}

func (r *recorder) handle(ev store.Event) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) nullifiers(t *testing.T) []types.Nullifier {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	var nfs []types.Nullifier
	for _, ev := range r.events {
		sp, err := event.DecodeSpend(ev)
		require.NoError(t, err)
		nfs = append(nfs, sp.Nullifier)
	}
	return nfs
}

func openNode(t *testing.T, st *store.Store) (*Node, *recorder) {
	tree, err := sct.NewTree(testDepth)
	require.NoError(t, err)
	bus := event.NewBus()
	rec := &recorder{}
	require.NoError(t, bus.Subscribe(event.KindSpend, rec.handle))

	n, err := New(st, tree, action.NewPipeline(testChainID, 2), bus)
	require.NoError(t, err)
	return n, rec
}

func newNode(t *testing.T) (*Node, *recorder) {
	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return openNode(t, st)
}

// genesis mints one note per value and returns the plans to spend them.
func genesis(t *testing.T, n *Node, values ...uint64) []prover.SpendPlan {
	notes := make([]*types.Note, len(values))
	keys := make([]*crypto.SpendKey, len(values))
	for i, v := range values {
		sk, err := crypto.NewSpendKey()
		require.NoError(t, err)
		keys[i] = sk
		notes[i] = types.NewNote(uint256.NewInt(v), sk.Ak(), sk.Nk())
	}
	positions, err := n.Genesis(context.Background(), notes)
	require.NoError(t, err)

	plans := make([]prover.SpendPlan, len(values))
	for i := range values {
		plans[i] = prover.SpendPlan{Key: keys[i], Note: notes[i], Position: positions[i]}
	}
	return plans
}

func build(t *testing.T, n *Node, plans ...prover.SpendPlan) *action.Transaction {
	snap, err := n.Store().Snapshot()
	require.NoError(t, err)
	defer snap.Release()
	tx, _, err := prover.BuildTransaction(context.Background(), testParams, snap, n.Tree(), testChainID, plans)
	require.NoError(t, err)
	return tx
}

func TestGenesis(t *testing.T) {
	n, _ := newNode(t)
	plans := genesis(t, n, 10, 20, 30)
	require.Equal(t, uint64(1), n.Height())
	for i, p := range plans {
		require.Equal(t, uint64(i), p.Position)
	}

	snap, err := n.Store().Snapshot()
	require.NoError(t, err)
	defer snap.Release()
	ctx := context.Background()

	root, err := n.Tree().Root(ctx, snap)
	require.NoError(t, err)
	latest, err := sct.LatestAnchor(ctx, snap)
	require.NoError(t, err)
	require.Equal(t, root, latest)
	h, found, err := sct.AnchorHeight(ctx, snap, root)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(0), h)

	// only once
	_, err = n.Genesis(ctx, nil)
	require.Error(t, err)
}

func TestGenesisRejectsInvalidNote(t *testing.T) {
	n, _ := newNode(t)
	sk, err := crypto.NewSpendKey()
	require.NoError(t, err)
	note := types.NewNote(new(uint256.Int).Lsh(uint256.NewInt(1), 64), sk.Ak(), sk.Nk())

	_, err = n.Genesis(context.Background(), []*types.Note{note})
	require.Error(t, err)
	require.Equal(t, uint64(0), n.Store().Version())
}

func TestApplyBlock(t *testing.T) {
	n, rec := newNode(t)
	plans := genesis(t, n, 10, 20)

	tx0 := build(t, n, plans[0])
	// same note, different proof and rk
	tx1 := build(t, n, plans[0])
	// one note spent twice inside a transaction
	tx2 := build(t, n, plans[1], plans[1])

	version := n.Store().Version()
	genesisAnchor := tx0.Anchor
	results, anchor, err := n.ApplyBlock(context.Background(), []*action.Transaction{tx0, tx1, tx2})
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.True(t, results[0].IsOK())
	require.Equal(t, "OK", results[0].Code)
	require.Equal(t, version+1, results[0].Version)
	require.Len(t, results[0].Events, 1)

	require.False(t, results[1].IsOK())
	require.Equal(t, "NullifierAlreadySpent", results[1].Code)
	require.Empty(t, results[1].Events)

	require.False(t, results[2].IsOK())
	require.Equal(t, "DuplicateNullifierInBuffer", results[2].Code)

	// rejected transactions left no trace; the seal took one version
	require.Equal(t, version+2, n.Store().Version())
	require.Equal(t, uint64(2), n.Height())

	// the bus saw the committed spend only
	require.Equal(t, []types.Nullifier{tx0.Actions[0].Spend.Body.Nullifier}, rec.nullifiers(t))

	snap, err := n.Store().Snapshot()
	require.NoError(t, err)
	defer snap.Release()
	ctx := context.Background()
	spent, err := sct.IsSpent(ctx, snap, tx2.Actions[0].Spend.Body.Nullifier)
	require.NoError(t, err)
	require.False(t, spent)

	// spends add no commitments: the block seals the genesis root again and
	// the anchor keeps the height it was first sealed at
	require.Equal(t, genesisAnchor, anchor)
	h, found, err := sct.AnchorHeight(ctx, snap, anchor)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(0), h)
	latest, err := sct.LatestAnchor(ctx, snap)
	require.NoError(t, err)
	require.Equal(t, anchor, latest)
}

func TestReplayInLaterBlock(t *testing.T) {
	n, rec := newNode(t)
	plans := genesis(t, n, 10)
	tx := build(t, n, plans[0])
	ctx := context.Background()

	results, _, err := n.ApplyBlock(ctx, []*action.Transaction{tx})
	require.NoError(t, err)
	require.True(t, results[0].IsOK())

	// the exact same bytes again
	results, _, err = n.ApplyBlock(ctx, []*action.Transaction{tx})
	require.NoError(t, err)
	require.Equal(t, "NullifierAlreadySpent", results[0].Code)
	require.Len(t, rec.nullifiers(t), 1)
}

func TestDeliverTxRejectsBadShape(t *testing.T) {
	n, rec := newNode(t)
	genesis(t, n, 10)
	version := n.Store().Version()

	res, err := n.DeliverTx(context.Background(), &action.Transaction{ChainID: testChainID})
	require.NoError(t, err)
	require.Equal(t, "EmptyTransaction", res.Code)
	require.Equal(t, version, n.Store().Version())
	require.Empty(t, rec.nullifiers(t))
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(dir)
	require.NoError(t, err)
	n, _ := openNode(t, st)
	plans := genesis(t, n, 10)
	_, _, err = n.ApplyBlock(context.Background(), []*action.Transaction{build(t, n, plans[0])})
	require.NoError(t, err)
	require.Equal(t, uint64(2), n.Height())
	require.NoError(t, st.Close())

	st, err = store.Open(dir)
	require.NoError(t, err)
	defer st.Close()
	n, _ = openNode(t, st)
	require.Equal(t, uint64(2), n.Height())

	// a tree of another depth does not fit the state
	other, err := sct.NewTree(testDepth + 1)
	require.NoError(t, err)
	_, err = New(st, other, action.NewPipeline(testChainID, 1), event.NewBus())
	require.Error(t, err)
}
