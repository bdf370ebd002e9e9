package proof

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	std_tedwards "github.com/consensys/gnark/std/algebra/native/twistededwards"
	"github.com/kysee/zkpool/zk-pool/crypto"
	"github.com/kysee/zkpool/zk-pool/types"
)

// SpendWitness is what the owner of a note knows when spending it.
type SpendWitness struct {
	Note     *types.Note
	Position uint64
	// Path[0] is the note commitment, Path[i] the sibling at level i.
	Path     [][]byte
	Anchor   types.Anchor
	Alpha    *big.Int
	Blinding *big.Int
}

// SpendStatement holds the public inputs of a spend proof.
type SpendStatement struct {
	Anchor            types.Anchor
	BalanceCommitment types.BalanceCommitment
	Nullifier         types.Nullifier
	Rk                types.SpendVerificationKey
}

// Statement computes the public inputs implied by the witness.
func (w *SpendWitness) Statement() (*SpendStatement, error) {
	if err := w.Note.Validate(); err != nil {
		return nil, err
	}
	rk, err := crypto.RandomizeVerificationKey(w.Note.Ak, w.Alpha)
	if err != nil {
		return nil, err
	}
	return &SpendStatement{
		Anchor:            w.Anchor,
		BalanceCommitment: crypto.CommitBalance(w.Note.Value.Uint64(), w.Blinding),
		Nullifier:         w.Note.Nullifier(w.Position),
		Rk:                rk,
	}, nil
}

// ProveSpend creates a spend proof. It fails when the witness does not
// satisfy the circuit, e.g. for a path that does not lead to the anchor.
func ProveSpend(params *Params, w *SpendWitness) ([]byte, *SpendStatement, error) {
	if len(w.Path) != params.Depth+1 {
		return nil, nil, fmt.Errorf("wrong merkle path length: expected(%d), got(%d)", params.Depth+1, len(w.Path))
	}
	stmt, err := w.Statement()
	if err != nil {
		return nil, nil, err
	}

	bcX, bcY, err := stmt.BalanceCommitment.Coordinates()
	if err != nil {
		return nil, nil, err
	}
	rkX, rkY, err := stmt.Rk.Coordinates()
	if err != nil {
		return nil, nil, err
	}
	akX, akY, err := w.Note.Ak.Coordinates()
	if err != nil {
		return nil, nil, err
	}

	assignment := newCircuit(params.Depth)
	assignment.Anchor = stmt.Anchor[:]
	assignment.BalanceCommitmentX, assignment.BalanceCommitmentY = bcX, bcY
	assignment.Nullifier = stmt.Nullifier[:]
	assignment.RkX, assignment.RkY = rkX, rkY

	assignment.Value = w.Note.Value.Uint64()
	assignment.Salt = w.Note.Salt[:]
	assignment.Ak = std_tedwards.Point{X: akX, Y: akY}
	assignment.Nk = w.Note.Nk[:]
	assignment.Position = w.Position
	for i, p := range w.Path {
		assignment.MerklePath[i] = p
	}
	assignment.Blinding = w.Blinding
	assignment.Alpha = w.Alpha

	wtn, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, nil, err
	}
	proof, err := groth16.Prove(params.CCS, params.PK, wtn)
	if err != nil {
		return nil, nil, err
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), stmt, nil
}
