package types

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/kysee/zkpool/zk-pool/poolerr"
)

type SourceKind uint8

const (
	SourceUnset SourceKind = iota
	SourceTransaction
	SourceGenesis
)

func (k SourceKind) String() string {
	switch k {
	case SourceTransaction:
		return "transaction"
	case SourceGenesis:
		return "genesis"
	default:
		return "unset"
	}
}

// Source records why a state change happened: which transaction and which of
// its actions, at which height.
type Source struct {
	Kind        SourceKind
	TxID        [HashSize]byte
	ActionIndex uint32
	Height      uint64
}

func TransactionSource(txID [HashSize]byte, actionIndex uint32, height uint64) Source {
	return Source{
		Kind:        SourceTransaction,
		TxID:        txID,
		ActionIndex: actionIndex,
		Height:      height,
	}
}

func (s Source) IsZero() bool {
	return s.Kind == SourceUnset
}

func (s Source) String() string {
	if s.Kind == SourceTransaction {
		return fmt.Sprintf("tx:%s/%d@%d", hex.EncodeToString(s.TxID[:]), s.ActionIndex, s.Height)
	}
	return fmt.Sprintf("%s@%d", s.Kind, s.Height)
}

func (s Source) Bytes() []byte {
	bz, err := rlp.EncodeToBytes(&s)
	if err != nil {
		panic(fmt.Sprintf("failed to RLP encode Source: %v", err))
	}
	return bz
}

func DecodeSource(bz []byte) (Source, error) {
	var s Source
	if err := rlp.DecodeBytes(bz, &s); err != nil {
		return Source{}, fmt.Errorf("%w: source: %v", poolerr.ErrMalformed, err)
	}
	return s, nil
}
