package store

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/kysee/zkpool/zk-pool/poolerr"
)

// Event is a record of an executed action, committed together with the
// state changes of its scope.
type Event struct {
	Kind    string
	Payload []byte
	Version uint64
	Seq     uint32
}

func (ev *Event) Bytes() []byte {
	bz, err := rlp.EncodeToBytes(ev)
	if err != nil {
		panic(fmt.Sprintf("failed to RLP encode Event: %v", err))
	}
	return bz
}

func decodeEvent(bz []byte) (*Event, error) {
	ev := new(Event)
	if err := rlp.DecodeBytes(bz, ev); err != nil {
		return nil, fmt.Errorf("%w: event: %v", poolerr.ErrMalformed, err)
	}
	return ev, nil
}
