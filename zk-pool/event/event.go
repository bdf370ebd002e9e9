package event

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/kysee/zkpool/zk-pool/types"
)

const KindSpend = "spend"

// Spend is emitted for every executed spend.
type Spend struct {
	Nullifier types.Nullifier
}

// EmitSpend appends a spend event to the write scope. Callers stage the
// nullifier first; the event is committed or dropped together with it.
func EmitSpend(ctx context.Context, write store.StateWrite, nf types.Nullifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bz, err := rlp.EncodeToBytes(&Spend{Nullifier: nf})
	if err != nil {
		return err
	}
	return write.AppendEvent(store.Event{Kind: KindSpend, Payload: bz})
}

func DecodeSpend(ev store.Event) (*Spend, error) {
	if ev.Kind != KindSpend {
		return nil, fmt.Errorf("%w: not a spend event: %s", poolerr.ErrMalformed, ev.Kind)
	}
	sp := new(Spend)
	if err := rlp.DecodeBytes(ev.Payload, sp); err != nil {
		return nil, fmt.Errorf("%w: spend event: %v", poolerr.ErrMalformed, err)
	}
	return sp, nil
}
