package utils

import (
	"encoding/binary"
	"hash"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	_ "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/twistededwards"
	gnark_hash "github.com/consensys/gnark-crypto/hash"
)

var (
	CURVEID = twistededwards.BN254
)

func MiMCHasher() hash.Hash {
	return gnark_hash.MIMC_BN254.New()
}

// MiMCHash hashes the inputs as a sequence of BN254 scalar field elements.
// Every full 32 bytes block is reduced modulo r before being absorbed, a shorter
// trailing block is left-padded by the hasher. The result is a canonical field element.
func MiMCHash(ins ...[]byte) []byte {
	hasher := MiMCHasher()

	blockSize := hasher.Size()

	hasher.Reset()
	for _, in := range ins {

		for i := 0; i < len(in); i += blockSize {
			end := i + blockSize
			if end > len(in) {
				end = len(in)
			}
			chunk := in[i:end]

			if len(chunk) == blockSize {
				// this value may be greater than the modulus; convert to fr.Element
				var elem fr.Element
				elem.SetBytes(chunk)
				// canonical form
				chunk = elem.Marshal()
			}
			if _, err := hasher.Write(chunk); err != nil {
				panic(err)
			}
		}
	}
	return hasher.Sum(nil)
}

// MiMCHash32 is MiMCHash with a fixed size result.
func MiMCHash32(ins ...[]byte) [32]byte {
	var ret [32]byte
	copy(ret[:], MiMCHash(ins...))
	return ret
}

// FieldBytes reduces bz modulo r and returns the canonical 32 bytes big-endian encoding.
func FieldBytes(bz []byte) []byte {
	var elem fr.Element
	elem.SetBytes(bz)
	return elem.Marshal()
}

// IsCanonical reports whether bz (32 bytes) encodes an element smaller than r.
func IsCanonical(bz []byte) bool {
	if len(bz) != fr.Bytes {
		return false
	}
	var elem fr.Element
	return elem.SetBytesCanonical(bz) == nil
}

func Uint64Field(v uint64) []byte {
	bz := make([]byte, fr.Bytes)
	binary.BigEndian.PutUint64(bz[fr.Bytes-8:], v)
	return bz
}
