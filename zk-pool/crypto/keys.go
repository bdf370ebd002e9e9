package crypto

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/big"

	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	jubjub "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/kysee/zkpool/zk-pool/types"
)

const sizeFr = 32

// SpendKey holds the spend authorization key ask. The nullifier key nk is
// derived from it.
type SpendKey struct {
	ask *jubjub.PrivateKey
}

func NewSpendKey() (*SpendKey, error) {
	prv, err := jubjub.GenerateKey(crand.Reader)
	if err != nil {
		return nil, err
	}
	return &SpendKey{ask: prv}, nil
}

func SpendKeyFromBytes(bz []byte) (*SpendKey, error) {
	prv := new(jubjub.PrivateKey)
	if _, err := prv.SetBytes(bz); err != nil {
		return nil, fmt.Errorf("%w: spend key: %v", poolerr.ErrMalformed, err)
	}
	return &SpendKey{ask: prv}, nil
}

func (sk *SpendKey) Bytes() []byte {
	return sk.ask.Bytes()
}

// Ak is the spend verification key, ask*B.
func (sk *SpendKey) Ak() types.SpendVerificationKey {
	return types.SpendVerificationKeyFromPoint(&sk.ask.PublicKey.A)
}

// Nk is the nullifier key, MiMC("zkpool.nk", ask).
func (sk *SpendKey) Nk() [types.HashSize]byte {
	return utils.MiMCHash32([]byte("zkpool.nk"), sk.scalar())
}

func (sk *SpendKey) Address() string {
	return sk.Ak().Address()
}

// Randomize returns the randomized signing key rsk = ask + alpha (mod l).
func (sk *SpendKey) Randomize(alpha *big.Int) (*jubjub.PrivateKey, error) {
	return RandomizeKey(sk.ask, alpha)
}

func (sk *SpendKey) scalar() []byte {
	return sk.ask.Bytes()[sizeFr : 2*sizeFr]
}

// RandomizeKey computes rsk = ask + alpha mod l. Its public key equals
// RandomizeVerificationKey(ask*B, alpha).
func RandomizeKey(ask *jubjub.PrivateKey, alpha *big.Int) (*jubjub.PrivateKey, error) {
	params := tedwards.GetEdwardsCurve()

	askBytes := ask.Bytes()
	s := new(big.Int).SetBytes(askBytes[sizeFr : 2*sizeFr])
	s.Add(s, alpha).Mod(s, &params.Order)

	var rk tedwards.PointAffine
	rk.ScalarMultiplication(&params.Base, s)
	if !rk.IsOnCurve() {
		return nil, errors.New("randomized key is not on curve")
	}

	rkBytes := rk.Bytes()
	buf := make([]byte, 3*sizeFr)
	copy(buf[:sizeFr], rkBytes[:])
	s.FillBytes(buf[sizeFr : 2*sizeFr])
	copy(buf[2*sizeFr:], askBytes[2*sizeFr:])

	rsk := new(jubjub.PrivateKey)
	if _, err := rsk.SetBytes(buf); err != nil {
		return nil, err
	}
	return rsk, nil
}

// RandomizeVerificationKey computes rk = ak + alpha*B.
func RandomizeVerificationKey(ak types.SpendVerificationKey, alpha *big.Int) (types.SpendVerificationKey, error) {
	params := tedwards.GetEdwardsCurve()

	akPt, err := ak.Point()
	if err != nil {
		return types.SpendVerificationKey{}, err
	}
	var aB, rk tedwards.PointAffine
	aB.ScalarMultiplication(&params.Base, alpha)
	rk.Add(akPt, &aB)
	return types.SpendVerificationKeyFromPoint(&rk), nil
}

// RandomScalar returns a uniformly random scalar below the prime subgroup order.
func RandomScalar() (*big.Int, error) {
	params := tedwards.GetEdwardsCurve()
	return crand.Int(crand.Reader, &params.Order)
}

// SignSpendAuth signs the effect hash with a randomized key.
func SignSpendAuth(rsk *jubjub.PrivateKey, eh types.EffectHash) (types.SpendAuthSignature, error) {
	var sig types.SpendAuthSignature
	bz, err := rsk.Sign(eh[:], newBlake2b256())
	if err != nil {
		return sig, err
	}
	if len(bz) != types.SignatureSize {
		return sig, fmt.Errorf("unexpected signature size %d", len(bz))
	}
	copy(sig[:], bz)
	return sig, nil
}

// VerifySpendAuth checks sig over the effect hash under rk.
func VerifySpendAuth(rk types.SpendVerificationKey, eh types.EffectHash, sig types.SpendAuthSignature) error {
	pub := new(jubjub.PublicKey)
	if _, err := pub.SetBytes(rk[:]); err != nil {
		return fmt.Errorf("%w: rk: %v", poolerr.ErrAuthSignatureInvalid, err)
	}
	ok, err := pub.Verify(sig[:], eh[:], newBlake2b256())
	if err != nil {
		return fmt.Errorf("%w: %v", poolerr.ErrAuthSignatureInvalid, err)
	}
	if !ok {
		return poolerr.ErrAuthSignatureInvalid
	}
	return nil
}
