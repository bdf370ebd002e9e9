package crypto

import (
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Blake2b512 hashes parts under a domain key (at most 64 bytes).
func Blake2b512(domain string, parts ...[]byte) [64]byte {
	h, err := blake2b.New512([]byte(domain))
	if err != nil {
		panic(err)
	}
	for _, p := range parts {
		h.Write(p)
	}
	var ret [64]byte
	copy(ret[:], h.Sum(nil))
	return ret
}

// Blake2b256 hashes parts under a domain key (at most 64 bytes).
func Blake2b256(domain string, parts ...[]byte) [32]byte {
	h, err := blake2b.New256([]byte(domain))
	if err != nil {
		panic(err)
	}
	for _, p := range parts {
		h.Write(p)
	}
	var ret [32]byte
	copy(ret[:], h.Sum(nil))
	return ret
}

func newBlake2b256() hash.Hash {
	h, _ := blake2b.New256(nil)
	return h
}
