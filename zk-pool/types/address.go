package types

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

const (
	ver        = 0x01
	addrPrefix = "zp"
)

func EncodeAddress(payload []byte) string {
	return addrPrefix + base58.CheckEncode(payload, ver)
}

func DecodeAddress(addr string) ([]byte, error) {
	if !strings.HasPrefix(addr, addrPrefix) {
		n := len(addr)
		if n > 2 {
			n = 2
		}
		return nil, fmt.Errorf("wrong prefix: got(%s)", addr[:n])
	}
	bz, _ver, err := base58.CheckDecode(addr[len(addrPrefix):])
	if err != nil {
		return nil, err
	}
	if _ver != ver {
		return nil, fmt.Errorf("wrong version: expected(%d), got(%d)", ver, _ver)
	}
	return bz, nil
}

// Address is the printable form of a spend verification key.
func (vk SpendVerificationKey) Address() string {
	return EncodeAddress(vk[:])
}

func ParseAddress(addr string) (SpendVerificationKey, error) {
	var vk SpendVerificationKey
	bz, err := DecodeAddress(addr)
	if err != nil {
		return vk, err
	}
	if len(bz) != PointSize {
		return vk, fmt.Errorf("wrong payload length: expected(%d), got(%d)", PointSize, len(bz))
	}
	copy(vk[:], bz)
	if _, err := vk.Point(); err != nil {
		return vk, err
	}
	return vk, nil
}
