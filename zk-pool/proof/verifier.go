package proof

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	lru "github.com/hashicorp/golang-lru"
	"github.com/kysee/zkpool/utils"
	"github.com/kysee/zkpool/zk-pool/crypto"
	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/kysee/zkpool/zk-pool/types"
)

const DefaultCacheSize = 4096

var (
	logger = utils.NewLogger("proof")

	installMtx sync.RWMutex
	installed  *Verifier
)

// Verifier checks spend proofs against one verification key. Accepted
// statements are remembered in an LRU cache.
type Verifier struct {
	vk    groth16.VerifyingKey
	vkID  [32]byte
	cache *lru.Cache
}

func NewVerifier(vk groth16.VerifyingKey, cacheSize int) (*Verifier, error) {
	if vk == nil {
		return nil, errors.New("nil verification key")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return nil, err
	}
	return &Verifier{
		vk:    vk,
		vkID:  crypto.Blake2b256("zkpool.vk", buf.Bytes()),
		cache: cache,
	}, nil
}

// Init installs the process-wide verifier. It may be called only once.
func Init(vk groth16.VerifyingKey, cacheSize int) error {
	installMtx.Lock()
	defer installMtx.Unlock()

	if installed != nil {
		return fmt.Errorf("%w: verification key is already installed", poolerr.ErrPreconditionViolation)
	}
	v, err := NewVerifier(vk, cacheSize)
	if err != nil {
		return err
	}
	installed = v
	logger.Info().Hex("vk", v.vkID[:8]).Msg("spend verification key installed")
	return nil
}

// Installed returns the process-wide verifier or nil.
func Installed() *Verifier {
	installMtx.RLock()
	defer installMtx.RUnlock()
	return installed
}

// VerifySpend verifies a spend proof with the process-wide verifier.
func VerifySpend(anchor types.Anchor, bc types.BalanceCommitment, nf types.Nullifier, rk types.SpendVerificationKey, bzProof []byte) error {
	v := Installed()
	if v == nil {
		return fmt.Errorf("%w: no verification key installed", poolerr.ErrPreconditionViolation)
	}
	return v.Verify(anchor, bc, nf, rk, bzProof)
}

func (v *Verifier) Verify(anchor types.Anchor, bc types.BalanceCommitment, nf types.Nullifier, rk types.SpendVerificationKey, bzProof []byte) error {
	key := crypto.Blake2b256("zkpool.proof", v.vkID[:], anchor[:], bc[:], nf[:], rk[:], bzProof)
	if _, ok := v.cache.Get(key); ok {
		cacheHits.Inc()
		return nil
	}

	start := time.Now()
	err := Verify(v.vk, anchor, bc, nf, rk, bzProof)
	verifyDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		verifyTotal.WithLabelValues("invalid").Inc()
		logger.Debug().Err(err).Str("nullifier", nf.String()).Msg("spend proof rejected")
		return err
	}
	verifyTotal.WithLabelValues("valid").Inc()
	v.cache.Add(key, struct{}{})
	return nil
}

// Verify checks bzProof against vk and the public inputs of a spend.
// Every failure is reported as ErrProofInvalid.
func Verify(vk groth16.VerifyingKey, anchor types.Anchor, bc types.BalanceCommitment, nf types.Nullifier, rk types.SpendVerificationKey, bzProof []byte) error {
	if !anchor.IsCanonical() || !nf.IsCanonical() {
		return fmt.Errorf("%w: public input is not a field element", poolerr.ErrProofInvalid)
	}
	bcX, bcY, err := bc.Coordinates()
	if err != nil {
		return fmt.Errorf("%w: balance commitment: %v", poolerr.ErrProofInvalid, err)
	}
	rkX, rkY, err := rk.Coordinates()
	if err != nil {
		return fmt.Errorf("%w: rk: %v", poolerr.ErrProofInvalid, err)
	}

	proof := groth16.NewProof(ecc.BN254)
	n, err := proof.ReadFrom(bytes.NewReader(bzProof))
	if err != nil {
		return fmt.Errorf("%w: %v", poolerr.ErrProofInvalid, err)
	}
	if n != int64(len(bzProof)) {
		return fmt.Errorf("%w: %d trailing bytes", poolerr.ErrProofInvalid, int64(len(bzProof))-n)
	}

	assignment := SpendCircuit{
		Anchor:             anchor[:],
		BalanceCommitmentX: bcX,
		BalanceCommitmentY: bcY,
		Nullifier:          nf[:],
		RkX:                rkX,
		RkY:                rkY,
	}
	pubWtn, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("%w: %v", poolerr.ErrProofInvalid, err)
	}
	if err := groth16.Verify(proof, vk, pubWtn); err != nil {
		return fmt.Errorf("%w: %v", poolerr.ErrProofInvalid, err)
	}
	return nil
}
