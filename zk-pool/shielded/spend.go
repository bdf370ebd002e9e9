package shielded

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/crypto"
	"github.com/kysee/zkpool/zk-pool/event"
	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/kysee/zkpool/zk-pool/proof"
	"github.com/kysee/zkpool/zk-pool/sct"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/kysee/zkpool/zk-pool/types"
)

var logger = utils.NewLogger("shielded")

// SpendBody is the public part of a spend.
type SpendBody struct {
	BalanceCommitment types.BalanceCommitment
	Nullifier         types.Nullifier
	Rk                types.SpendVerificationKey
}

// EffectHash binds every field of the body.
func (b *SpendBody) EffectHash() types.EffectHash {
	bz, err := rlp.EncodeToBytes(b)
	if err != nil {
		panic(fmt.Sprintf("failed to RLP encode SpendBody: %v", err))
	}
	return crypto.Blake2b512("zkpool.spend", bz)
}

// Spend consumes one note: it reveals the note's nullifier, proves the note
// exists under the transaction anchor and authorizes the transaction with a
// signature under rk.
type Spend struct {
	Body    SpendBody
	AuthSig types.SpendAuthSignature
	Proof   []byte
}

// CheckStateless verifies the auth signature over the transaction effect
// hash and the proof against the transaction anchor. It reads no state.
func (sp *Spend) CheckStateless(ctx context.Context, txCtx types.TransactionContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := crypto.VerifySpendAuth(sp.Body.Rk, txCtx.EffectHash, sp.AuthSig); err != nil {
		return err
	}
	return proof.VerifySpend(txCtx.Anchor, sp.Body.BalanceCommitment, sp.Body.Nullifier, sp.Body.Rk, sp.Proof)
}

// CheckStateful fails if the nullifier is already spent in committed state.
func (sp *Spend) CheckStateful(ctx context.Context, read store.StateRead) error {
	return sct.CheckUnspent(ctx, read, sp.Body.Nullifier)
}

// Execute marks the nullifier spent by src and emits the spend event.
func (sp *Spend) Execute(ctx context.Context, write store.StateWrite, src types.Source) error {
	if src.IsZero() {
		logger.Error().Str("nullifier", sp.Body.Nullifier.String()).Msg("spend executed without a source")
		return fmt.Errorf("%w: spend executed without a source", poolerr.ErrPreconditionViolation)
	}
	if err := sct.MarkSpent(ctx, write, sp.Body.Nullifier, src); err != nil {
		return err
	}
	return event.EmitSpend(ctx, write, sp.Body.Nullifier)
}
