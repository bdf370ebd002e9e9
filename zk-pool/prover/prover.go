package prover

import (
	"context"
	"fmt"
	"math/big"

	"github.com/kysee/zkpool/zk-pool/action"
	"github.com/kysee/zkpool/zk-pool/crypto"
	"github.com/kysee/zkpool/zk-pool/proof"
	"github.com/kysee/zkpool/zk-pool/sct"
	"github.com/kysee/zkpool/zk-pool/shielded"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/kysee/zkpool/zk-pool/types"
	"golang.org/x/sync/errgroup"
)

// SpendPlan names a note to spend and the key that owns it.
type SpendPlan struct {
	Key      *crypto.SpendKey
	Note     *types.Note
	Position uint64
}

// Authorization holds the randomizers of a built transaction so that its
// spends can be signed again.
type Authorization struct {
	keys   []*crypto.SpendKey
	alphas []*big.Int
}

// BuildTransaction proves every planned spend against the current tree root
// in read and signs the resulting transaction.
func BuildTransaction(
	ctx context.Context,
	params *proof.Params,
	read store.StateRead,
	tree *sct.Tree,
	chainID string,
	plans []SpendPlan,
) (*action.Transaction, *Authorization, error) {
	if params.Depth != tree.Depth() {
		return nil, nil, fmt.Errorf("params depth(%d) does not match tree depth(%d)", params.Depth, tree.Depth())
	}
	anchor, err := tree.Root(ctx, read)
	if err != nil {
		return nil, nil, err
	}

	tx := &action.Transaction{
		ChainID: chainID,
		Anchor:  anchor,
		Actions: make([]action.Action, len(plans)),
	}
	auth := &Authorization{
		keys:   make([]*crypto.SpendKey, len(plans)),
		alphas: make([]*big.Int, len(plans)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, plan := range plans {
		g.Go(func() error {
			sp, alpha, err := buildSpend(gctx, params, read, tree, plan)
			if err != nil {
				return fmt.Errorf("spend %d: %w", i, err)
			}
			tx.Actions[i] = action.NewSpend(sp)
			auth.keys[i], auth.alphas[i] = plan.Key, alpha
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if err := auth.Sign(tx); err != nil {
		return nil, nil, err
	}
	return tx, auth, nil
}

func buildSpend(ctx context.Context, params *proof.Params, read store.StateRead, tree *sct.Tree, plan SpendPlan) (*shielded.Spend, *big.Int, error) {
	anchor, path, err := tree.Witness(ctx, read, plan.Position)
	if err != nil {
		return nil, nil, err
	}
	cm := plan.Note.Commitment()
	if types.NoteCommitment(path[0]) != cm {
		return nil, nil, fmt.Errorf("note is not at position %d", plan.Position)
	}

	alpha, err := crypto.RandomScalar()
	if err != nil {
		return nil, nil, err
	}
	blinding, err := crypto.RandomScalar()
	if err != nil {
		return nil, nil, err
	}
	bzProof, stmt, err := proof.ProveSpend(params, &proof.SpendWitness{
		Note:     plan.Note,
		Position: plan.Position,
		Path:     path,
		Anchor:   anchor,
		Alpha:    alpha,
		Blinding: blinding,
	})
	if err != nil {
		return nil, nil, err
	}

	return &shielded.Spend{
		Body: shielded.SpendBody{
			BalanceCommitment: stmt.BalanceCommitment,
			Nullifier:         stmt.Nullifier,
			Rk:                stmt.Rk,
		},
		Proof: bzProof,
	}, alpha, nil
}

// Sign computes the effect hash of tx and sets the auth signature of every
// spend. Call it again after changing tx.
func (a *Authorization) Sign(tx *action.Transaction) error {
	if len(tx.Actions) != len(a.keys) {
		return fmt.Errorf("transaction has %d actions, authorization has %d", len(tx.Actions), len(a.keys))
	}
	eh, err := tx.EffectHash()
	if err != nil {
		return err
	}
	for i := range tx.Actions {
		sp := tx.Actions[i].Spend
		if sp == nil {
			return fmt.Errorf("action %d is not a spend", i)
		}
		rsk, err := a.keys[i].Randomize(a.alphas[i])
		if err != nil {
			return err
		}
		if sp.AuthSig, err = crypto.SignSpendAuth(rsk, eh); err != nil {
			return err
		}
	}
	return nil
}
