package action

import (
	"context"
	"fmt"

	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/kysee/zkpool/zk-pool/shielded"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/kysee/zkpool/zk-pool/types"
)

// Kind is the closed set of action variants.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSpend
)

func (k Kind) String() string {
	switch k {
	case KindSpend:
		return "spend"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Handler is implemented by every action variant.
type Handler interface {
	// CheckStateless must not read or write state.
	CheckStateless(ctx context.Context, txCtx types.TransactionContext) error
	// CheckStateful reads committed state only.
	CheckStateful(ctx context.Context, read store.StateRead) error
	// Execute stages the action's effects; src tells why they happen.
	Execute(ctx context.Context, write store.StateWrite, src types.Source) error
}

var _ Handler = (*shielded.Spend)(nil)

// Action is a tagged union; exactly the field matching Kind is set.
type Action struct {
	Kind  Kind
	Spend *shielded.Spend `rlp:"nil"`
}

func NewSpend(sp *shielded.Spend) Action {
	return Action{Kind: KindSpend, Spend: sp}
}

func (a *Action) Handler() (Handler, error) {
	switch a.Kind {
	case KindSpend:
		if a.Spend != nil {
			return a.Spend, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", poolerr.ErrUnknownAction, a.Kind)
}

// EffectHash is the hash of the action's signed content.
func (a *Action) EffectHash() (types.EffectHash, error) {
	switch a.Kind {
	case KindSpend:
		if a.Spend != nil {
			return a.Spend.Body.EffectHash(), nil
		}
	}
	return types.EffectHash{}, fmt.Errorf("%w: %s", poolerr.ErrUnknownAction, a.Kind)
}
