package types

import (
	crand "crypto/rand"
	"fmt"
	"strings"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/holiman/uint256"
	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/stretchr/testify/require"
)

func newAk(t *testing.T) SpendVerificationKey {
	prv, err := eddsa.GenerateKey(crand.Reader)
	require.NoError(t, err)
	return SpendVerificationKey(prv.PublicKey.A.Bytes())
}

func TestAddressCodec(t *testing.T) {
	ak := newAk(t)

	addr0 := ak.Address()
	require.True(t, strings.HasPrefix(addr0, "zp"))

	// wrong prefix
	_addr0 := fmt.Sprintf("cz%s", addr0[2:])
	_, err := DecodeAddress(_addr0)
	require.ErrorContains(t, err, "wrong prefix")

	// broken checksum
	_addr1 := addr0[:len(addr0)-1] + "1"
	if _addr1 != addr0 {
		_, err = DecodeAddress(_addr1)
		require.Error(t, err)
	}

	ak1, err := ParseAddress(addr0)
	require.NoError(t, err)
	require.Equal(t, ak, ak1)
}

func TestNoteCommitmentAndNullifier(t *testing.T) {
	ak := newAk(t)
	nk := [HashSize]byte{}
	nk[31] = 7

	note := NewNote(uint256.NewInt(100), ak, nk)
	require.NoError(t, note.Validate())

	cm0 := note.Commitment()
	require.Equal(t, cm0, note.Commitment())

	// every field is bound
	other := *note
	other.Value = uint256.NewInt(101)
	require.NotEqual(t, cm0, other.Commitment())
	other = *note
	other.Salt = RandomSalt()
	require.NotEqual(t, cm0, other.Commitment())

	nf0 := note.Nullifier(0)
	require.Equal(t, nf0, note.Nullifier(0))
	require.NotEqual(t, nf0, note.Nullifier(1))
	require.True(t, nf0.IsCanonical())

	// a note for another nullifier key yields another nullifier
	nk1 := nk
	nk1[31] = 8
	require.NotEqual(t, nf0, DeriveNullifier(nk1, 0, cm0))

	decoded, err := DecodeNote(note.Bytes())
	require.NoError(t, err)
	require.Equal(t, cm0, decoded.Commitment())
}

func TestNoteValidate(t *testing.T) {
	ak := newAk(t)
	big := new(uint256.Int).Lsh(uint256.NewInt(1), 64)
	note := NewNote(big, ak, [HashSize]byte{})
	require.ErrorIs(t, note.Validate(), poolerr.ErrMalformed)
}

func TestSourceEncoding(t *testing.T) {
	require.True(t, Source{}.IsZero())

	src := TransactionSource([HashSize]byte{1, 2, 3}, 4, 5)
	require.False(t, src.IsZero())

	decoded, err := DecodeSource(src.Bytes())
	require.NoError(t, err)
	require.Equal(t, src, decoded)
	require.Contains(t, src.String(), "/4@5")

	_, err = DecodeSource([]byte{0xff, 0x00})
	require.ErrorIs(t, err, poolerr.ErrMalformed)
}

func TestParseHex(t *testing.T) {
	nf := Nullifier{0xaa, 0xbb}
	parsed, err := ParseNullifier(nf.String())
	require.NoError(t, err)
	require.Equal(t, nf, parsed)

	_, err = ParseNullifier("abcd")
	require.ErrorIs(t, err, poolerr.ErrMalformed)
	_, err = ParseAnchor("zz")
	require.ErrorIs(t, err, poolerr.ErrMalformed)
}
