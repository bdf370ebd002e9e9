package crypto

import (
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/types"
)

var (
	genOnce     sync.Once
	valueGen    tedwards.PointAffine
	blindingGen tedwards.PointAffine
)

func initGenerators() {
	genOnce.Do(func() {
		valueGen = hashToCurve("zkpool.value-generator")
		blindingGen = hashToCurve("zkpool.blinding-generator")
	})
}

// ValueGenerator is V in value*V + blinding*H.
func ValueGenerator() tedwards.PointAffine {
	initGenerators()
	return valueGen
}

// BlindingGenerator is H in value*V + blinding*H.
func BlindingGenerator() tedwards.PointAffine {
	initGenerators()
	return blindingGen
}

// CommitBalance returns value*V + blinding*H.
func CommitBalance(value uint64, blinding *big.Int) types.BalanceCommitment {
	initGenerators()

	var vV, bH, c tedwards.PointAffine
	vV.ScalarMultiplication(&valueGen, new(big.Int).SetUint64(value))
	bH.ScalarMultiplication(&blindingGen, blinding)
	c.Add(&vV, &bH)
	return types.BalanceCommitmentFromPoint(&c)
}

// hashToCurve maps a domain string to a point of the prime order subgroup
// by try-and-increment on y, then clears the cofactor.
func hashToCurve(domain string) tedwards.PointAffine {
	params := tedwards.GetEdwardsCurve()

	var cofactor big.Int
	params.Cofactor.BigInt(&cofactor)

	ctr := make([]byte, 8)
	for i := uint64(0); ; i++ {
		binary.BigEndian.PutUint64(ctr, i)

		var y fr.Element
		y.SetBytes(utils.MiMCHash([]byte(domain), ctr))

		// a*x^2 + y^2 = 1 + d*x^2*y^2  =>  x^2 = (1 - y^2) / (a - d*y^2)
		var y2, num, den, x2, x fr.Element
		y2.Square(&y)
		num.SetOne()
		num.Sub(&num, &y2)
		den.Mul(&params.D, &y2)
		den.Sub(&params.A, &den)
		if den.IsZero() {
			continue
		}
		den.Inverse(&den)
		x2.Mul(&num, &den)
		if x.Sqrt(&x2) == nil {
			continue
		}

		var p tedwards.PointAffine
		p.X, p.Y = x, y
		if !p.IsOnCurve() {
			continue
		}
		p.ScalarMultiplication(&p, &cofactor)
		if p.X.IsZero() && p.Y.IsOne() {
			continue
		}
		return p
	}
}
