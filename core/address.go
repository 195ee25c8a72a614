package core

import (
	"encoding/binary"

	"lukechampine.com/blake3"

	"lottochain/crypto"
)

var applicationAddressDomain = []byte("lottochain/app")

// ApplicationAddress derives the escrow account of an application id.
func ApplicationAddress(appID uint64) crypto.Address {
	buf := binary.BigEndian.AppendUint64(append([]byte(nil), applicationAddressDomain...), appID)
	return crypto.Address(blake3.Sum256(buf))
}
