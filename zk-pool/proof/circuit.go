package proof

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/accumulator/merkle"
	std_tedwards "github.com/consensys/gnark/std/algebra/native/twistededwards"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/crypto"
)

// SpendCircuit proves knowledge of a note in the commitment tree under
// Anchor whose nullifier is Nullifier, whose value is committed to by the
// balance commitment and whose owner key randomizes to Rk.
type SpendCircuit struct {
	Anchor             frontend.Variable `gnark:",public"`
	BalanceCommitmentX frontend.Variable `gnark:",public"`
	BalanceCommitmentY frontend.Variable `gnark:",public"`
	Nullifier          frontend.Variable `gnark:",public"`
	RkX                frontend.Variable `gnark:",public"`
	RkY                frontend.Variable `gnark:",public"`

	// the spent note
	Value      frontend.Variable
	Salt       frontend.Variable
	Ak         std_tedwards.Point
	Nk         frontend.Variable
	Position   frontend.Variable
	MerklePath []frontend.Variable

	Blinding frontend.Variable
	Alpha    frontend.Variable
}

func (cc *SpendCircuit) Define(api frontend.API) error {
	curve, err := std_tedwards.NewEdCurve(api, utils.CURVEID)
	if err != nil {
		return err
	}
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	// value fits in 64 bits
	_ = api.ToBinary(cc.Value, 64)
	curve.AssertIsOnCurve(cc.Ak)

	//
	// note commitment and its membership under the anchor
	hasher.Reset()
	hasher.Write(cc.Ak.X, cc.Ak.Y, cc.Nk, cc.Value, cc.Salt)
	cm := hasher.Sum()
	api.AssertIsEqual(cc.MerklePath[0], cm)

	proof := merkle.MerkleProof{
		RootHash: cc.Anchor,
		Path:     cc.MerklePath,
	}
	hasher.Reset()
	proof.VerifyProof(api, &hasher, cc.Position)

	//
	// nullifier
	hasher.Reset()
	hasher.Write(cc.Nk, cc.Position, cm)
	api.AssertIsEqual(cc.Nullifier, hasher.Sum())

	//
	// rk = ak + alpha*B
	base := std_tedwards.Point{
		X: curve.Params().Base[0],
		Y: curve.Params().Base[1],
	}
	rk := curve.Add(cc.Ak, curve.ScalarMul(base, cc.Alpha))
	api.AssertIsEqual(cc.RkX, rk.X)
	api.AssertIsEqual(cc.RkY, rk.Y)

	//
	// balance commitment = value*V + blinding*H
	V, H := crypto.ValueGenerator(), crypto.BlindingGenerator()
	genV := std_tedwards.Point{X: V.X.BigInt(new(big.Int)), Y: V.Y.BigInt(new(big.Int))}
	genH := std_tedwards.Point{X: H.X.BigInt(new(big.Int)), Y: H.Y.BigInt(new(big.Int))}
	bc := curve.Add(curve.ScalarMul(genV, cc.Value), curve.ScalarMul(genH, cc.Blinding))
	api.AssertIsEqual(cc.BalanceCommitmentX, bc.X)
	api.AssertIsEqual(cc.BalanceCommitmentY, bc.Y)

	return nil
}

func newCircuit(depth int) *SpendCircuit {
	return &SpendCircuit{
		MerklePath: make([]frontend.Variable, depth+1),
	}
}
