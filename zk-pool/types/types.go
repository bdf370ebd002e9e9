package types

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/poolerr"
)

const (
	HashSize      = 32
	PointSize     = 32
	EffectSize    = 64
	SignatureSize = 64
)

// Nullifier is published when a note is spent. It is a canonical BN254 scalar field element.
type Nullifier [HashSize]byte

// Anchor is a root of the note commitment tree.
type Anchor [HashSize]byte

type NoteCommitment [HashSize]byte

// BalanceCommitment is a compressed twisted Edwards point: value*V + blinding*H.
type BalanceCommitment [PointSize]byte

// SpendVerificationKey is a compressed twisted Edwards point. On a spend it holds
// the randomized key rk.
type SpendVerificationKey [PointSize]byte

type EffectHash [EffectSize]byte

type SpendAuthSignature [SignatureSize]byte

func (nf Nullifier) String() string         { return hex.EncodeToString(nf[:]) }
func (a Anchor) String() string             { return hex.EncodeToString(a[:]) }
func (cm NoteCommitment) String() string    { return hex.EncodeToString(cm[:]) }
func (bc BalanceCommitment) String() string { return hex.EncodeToString(bc[:]) }
func (vk SpendVerificationKey) String() string {
	return hex.EncodeToString(vk[:])
}
func (eh EffectHash) String() string { return hex.EncodeToString(eh[:]) }

func (a Anchor) IsZero() bool { return a == Anchor{} }

func (nf Nullifier) IsCanonical() bool { return utils.IsCanonical(nf[:]) }

func (a Anchor) IsCanonical() bool { return utils.IsCanonical(a[:]) }

func ParseNullifier(s string) (Nullifier, error) {
	var nf Nullifier
	bz, err := hex.DecodeString(s)
	if err != nil || len(bz) != HashSize {
		return nf, fmt.Errorf("%w: nullifier %q", poolerr.ErrMalformed, s)
	}
	copy(nf[:], bz)
	return nf, nil
}

func ParseAnchor(s string) (Anchor, error) {
	var a Anchor
	bz, err := hex.DecodeString(s)
	if err != nil || len(bz) != HashSize {
		return a, fmt.Errorf("%w: anchor %q", poolerr.ErrMalformed, s)
	}
	copy(a[:], bz)
	return a, nil
}

func (bc BalanceCommitment) Point() (*twistededwards.PointAffine, error) {
	return decodePoint(bc[:])
}

func (vk SpendVerificationKey) Point() (*twistededwards.PointAffine, error) {
	return decodePoint(vk[:])
}

// Coordinates returns the affine coordinates of the key as big integers.
func (vk SpendVerificationKey) Coordinates() (*big.Int, *big.Int, error) {
	p, err := vk.Point()
	if err != nil {
		return nil, nil, err
	}
	return p.X.BigInt(new(big.Int)), p.Y.BigInt(new(big.Int)), nil
}

func (bc BalanceCommitment) Coordinates() (*big.Int, *big.Int, error) {
	p, err := bc.Point()
	if err != nil {
		return nil, nil, err
	}
	return p.X.BigInt(new(big.Int)), p.Y.BigInt(new(big.Int)), nil
}

func SpendVerificationKeyFromPoint(p *twistededwards.PointAffine) SpendVerificationKey {
	return SpendVerificationKey(p.Bytes())
}

func BalanceCommitmentFromPoint(p *twistededwards.PointAffine) BalanceCommitment {
	return BalanceCommitment(p.Bytes())
}

func decodePoint(bz []byte) (*twistededwards.PointAffine, error) {
	var p twistededwards.PointAffine
	if _, err := p.SetBytes(bz); err != nil {
		return nil, fmt.Errorf("%w: point: %v", poolerr.ErrMalformed, err)
	}
	if !p.IsOnCurve() {
		return nil, fmt.Errorf("%w: point is not on curve", poolerr.ErrMalformed)
	}
	return &p, nil
}

// TransactionContext is the per-transaction data available to stateless checks.
type TransactionContext struct {
	EffectHash EffectHash
	Anchor     Anchor
}
