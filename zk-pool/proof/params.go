package proof

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"gopkg.in/yaml.v3"
)

const (
	ccsFile      = "spend.ccs"
	pkFile       = "spend.pk"
	vkFile       = "spend.vk"
	manifestFile = "spend.yaml"
	solidityFile = "SpendVerifier.sol"

	MaxDepth = 32
)

// Params are the compiled spend circuit and its groth16 keys for one tree depth.
type Params struct {
	Depth int
	CCS   constraint.ConstraintSystem
	PK    groth16.ProvingKey
	VK    groth16.VerifyingKey
}

type manifest struct {
	Depth   int    `yaml:"depth"`
	Curve   string `yaml:"curve"`
	Backend string `yaml:"backend"`
}

// Setup compiles the spend circuit for a tree of the given depth and runs the
// groth16 setup.
func Setup(depth int) (*Params, error) {
	if depth <= 0 || depth > MaxDepth {
		return nil, fmt.Errorf("invalid tree depth %d", depth)
	}

	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, newCircuit(depth))
	if err != nil {
		return nil, err
	}
	// todo: take the keys from a multi-party ceremony instead of a local setup
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("depth", depth).Int("constraints", ccs.GetNbConstraints()).Msg("spend circuit compiled")

	return &Params{Depth: depth, CCS: ccs, PK: pk, VK: vk}, nil
}

// Write stores the params in dir.
func (p *Params) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	bz, err := yaml.Marshal(&manifest{Depth: p.Depth, Curve: ecc.BN254.String(), Backend: "groth16"})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), bz, 0o644); err != nil {
		return err
	}

	if err := writeFile(filepath.Join(dir, ccsFile), p.CCS.WriteTo); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, pkFile), p.PK.WriteRawTo); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, vkFile), p.VK.WriteTo)
}

// ExportSolidity writes a solidity verifier for the verification key into dir.
func (p *Params) ExportSolidity(dir string) (string, error) {
	path := filepath.Join(dir, solidityFile)
	return path, writeFile(path, func(w io.Writer) (int64, error) {
		return 0, p.VK.ExportSolidity(w)
	})
}

// LoadParams reads params written by Write.
func LoadParams(dir string) (*Params, error) {
	bz, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := yaml.Unmarshal(bz, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", manifestFile, err)
	}
	if m.Curve != ecc.BN254.String() || m.Backend != "groth16" {
		return nil, fmt.Errorf("unsupported params: curve(%s), backend(%s)", m.Curve, m.Backend)
	}

	ccs := groth16.NewCS(ecc.BN254)
	if err := readFile(filepath.Join(dir, ccsFile), ccs.ReadFrom); err != nil {
		return nil, err
	}
	pk := groth16.NewProvingKey(ecc.BN254)
	if err := readFile(filepath.Join(dir, pkFile), pk.UnsafeReadFrom); err != nil {
		return nil, err
	}
	vk, err := LoadVerifyingKey(dir)
	if err != nil {
		return nil, err
	}
	return &Params{Depth: m.Depth, CCS: ccs, PK: pk, VK: vk}, nil
}

// LoadVerifyingKey reads only the verification key; enough for a verifying node.
func LoadVerifyingKey(dir string) (groth16.VerifyingKey, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if err := readFile(filepath.Join(dir, vkFile), vk.ReadFrom); err != nil {
		return nil, err
	}
	return vk, nil
}

func writeFile(path string, writeTo func(io.Writer) (int64, error)) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	if _, err = writeTo(w); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return w.Flush()
}

func readFile(path string, readFrom func(io.Reader) (int64, error)) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("params file %s not found", filepath.Base(path))
		}
		return err
	}
	defer f.Close()

	if _, err := readFrom(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}
