package sct

import (
	"context"
	"errors"
	"fmt"

	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/kysee/zkpool/zk-pool/store"
	"github.com/kysee/zkpool/zk-pool/types"
)

var prefixNullifier = []byte("sct/nf/")

func nullifierKey(nf types.Nullifier) []byte {
	return append(append(make([]byte, 0, len(prefixNullifier)+types.HashSize), prefixNullifier...), nf[:]...)
}

// IsSpent reports whether nf is in the spent set visible to read.
func IsSpent(ctx context.Context, read store.StateRead, nf types.Nullifier) (bool, error) {
	return read.Has(ctx, nullifierKey(nf))
}

// SpendSource returns where nf was spent.
func SpendSource(ctx context.Context, read store.StateRead, nf types.Nullifier) (types.Source, bool, error) {
	bz, err := read.Get(ctx, nullifierKey(nf))
	if errors.Is(err, store.ErrNotFound) {
		return types.Source{}, false, nil
	} else if err != nil {
		return types.Source{}, false, err
	}
	src, err := types.DecodeSource(bz)
	if err != nil {
		return types.Source{}, false, err
	}
	return src, true, nil
}

// CheckUnspent fails with ErrNullifierAlreadySpent if nf is in the spent set.
func CheckUnspent(ctx context.Context, read store.StateRead, nf types.Nullifier) error {
	spent, err := IsSpent(ctx, read, nf)
	if err != nil {
		return err
	}
	if spent {
		return fmt.Errorf("%w: %s", poolerr.ErrNullifierAlreadySpent, nf)
	}
	return nil
}

// MarkSpent stages nf into the spent set, tagged with src. A nullifier staged
// earlier in the same scope or committed before is never overwritten.
func MarkSpent(ctx context.Context, write store.StateWrite, nf types.Nullifier, src types.Source) error {
	if src.IsZero() {
		return fmt.Errorf("%w: no source for nullifier %s", poolerr.ErrPreconditionViolation, nf)
	}

	key := nullifierKey(nf)
	staged, err := write.Staged(key)
	if err != nil {
		return err
	}
	if staged {
		return fmt.Errorf("%w: %s", poolerr.ErrDuplicateNullifierInBuffer, nf)
	}
	committed, err := write.Has(ctx, key)
	if err != nil {
		return err
	}
	if committed {
		return fmt.Errorf("%w: %s", poolerr.ErrNullifierAlreadySpent, nf)
	}
	return write.Put(key, src.Bytes())
}
