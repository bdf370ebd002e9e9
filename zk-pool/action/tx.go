package action

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/kysee/zkpool/zk-pool/crypto"
	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/kysee/zkpool/zk-pool/types"
)

const MaxActions = 256

// Transaction is an ordered list of actions against one anchor.
type Transaction struct {
	ChainID string
	Anchor  types.Anchor
	Actions []Action
}

// EffectHash commits to everything the spend auth signatures must bind:
// the chain, the anchor and the effect hash of every action in order.
func (tx *Transaction) EffectHash() (types.EffectHash, error) {
	parts := make([][]byte, 0, 2+2*len(tx.Actions))
	parts = append(parts, []byte(tx.ChainID), tx.Anchor[:])
	for i := range tx.Actions {
		eh, err := tx.Actions[i].EffectHash()
		if err != nil {
			return types.EffectHash{}, err
		}
		parts = append(parts, []byte{byte(tx.Actions[i].Kind)}, eh[:])
	}
	return crypto.Blake2b512("zkpool.tx", parts...), nil
}

// Context builds the stateless check context of the transaction.
func (tx *Transaction) Context() (types.TransactionContext, error) {
	eh, err := tx.EffectHash()
	if err != nil {
		return types.TransactionContext{}, err
	}
	return types.TransactionContext{EffectHash: eh, Anchor: tx.Anchor}, nil
}

// ID identifies the transaction including its signatures and proofs.
func (tx *Transaction) ID() [types.HashSize]byte {
	return crypto.Blake2b256("zkpool.txid", tx.Bytes())
}

func (tx *Transaction) Bytes() []byte {
	bz, err := rlp.EncodeToBytes(tx)
	if err != nil {
		panic(fmt.Sprintf("failed to RLP encode Transaction: %v", err))
	}
	return bz
}

func DecodeTransaction(bz []byte) (*Transaction, error) {
	tx := new(Transaction)
	if err := rlp.DecodeBytes(bz, tx); err != nil {
		return nil, fmt.Errorf("%w: transaction: %v", poolerr.ErrMalformed, err)
	}
	return tx, nil
}
