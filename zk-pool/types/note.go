package types

import (
	crand "crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/poolerr"
)

// Note is a shielded value owned by the holder of the spend authorization key
// behind Ak and the nullifier key Nk.
type Note struct {
	Value *uint256.Int
	Ak    SpendVerificationKey
	Nk    [HashSize]byte
	Salt  [HashSize]byte
}

func NewNote(value *uint256.Int, ak SpendVerificationKey, nk [HashSize]byte) *Note {
	return &Note{
		Value: value,
		Ak:    ak,
		Nk:    nk,
		Salt:  RandomSalt(),
	}
}

// RandomSalt returns a random canonical field element.
func RandomSalt() [HashSize]byte {
	var salt [HashSize]byte
	rbz := make([]byte, HashSize)
	_, _ = crand.Read(rbz)
	copy(salt[:], utils.FieldBytes(rbz))
	return salt
}

// Validate checks the fields the spend circuit relies on.
func (n *Note) Validate() error {
	if n.Value == nil || !n.Value.IsUint64() {
		return fmt.Errorf("%w: note value must fit in 64 bits", poolerr.ErrMalformed)
	}
	if !utils.IsCanonical(n.Nk[:]) || !utils.IsCanonical(n.Salt[:]) {
		return fmt.Errorf("%w: note nk and salt must be field elements", poolerr.ErrMalformed)
	}
	if _, err := n.Ak.Point(); err != nil {
		return err
	}
	return nil
}

// Commitment is MiMC(ak.x, ak.y, nk, value, salt).
func (n *Note) Commitment() NoteCommitment {
	akx, aky, err := n.Ak.Coordinates()
	if err != nil {
		panic(fmt.Sprintf("note with invalid ak: %v", err))
	}
	value := n.Value.Bytes32()
	return NoteCommitment(utils.MiMCHash32(
		fieldOf(akx),
		fieldOf(aky),
		n.Nk[:],
		value[:],
		n.Salt[:],
	))
}

// Nullifier is MiMC(nk, position, cm); spending the same note always reveals
// the same nullifier.
func (n *Note) Nullifier(position uint64) Nullifier {
	cm := n.Commitment()
	return DeriveNullifier(n.Nk, position, cm)
}

func DeriveNullifier(nk [HashSize]byte, position uint64, cm NoteCommitment) Nullifier {
	return Nullifier(utils.MiMCHash32(nk[:], utils.Uint64Field(position), cm[:]))
}

func (n *Note) Bytes() []byte {
	bz, err := rlp.EncodeToBytes(n)
	if err != nil {
		panic(fmt.Sprintf("failed to RLP encode Note: %v", err))
	}
	return bz
}

func DecodeNote(bz []byte) (*Note, error) {
	n := new(Note)
	if err := rlp.DecodeBytes(bz, n); err != nil {
		return nil, fmt.Errorf("%w: note: %v", poolerr.ErrMalformed, err)
	}
	return n, nil
}

func fieldOf(v *big.Int) []byte {
	bz := make([]byte, HashSize)
	return v.FillBytes(bz)
}
