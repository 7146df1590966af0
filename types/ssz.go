package types

import (
	"encoding/binary"

	"github.com/minio/sha256-simd"
)

// hasher is the merkleization hash over one or more 32-byte chunks.
var hasher = func(data ...[]byte) [32]byte {
	h := sha256.New()
	for i := 0; i < len(data); i++ {
		h.Write(data[i])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashTreeRoot computes the SSZ hash tree root of the deposit data, the
// value the deposit contract checks the submitted root against. The
// container merkleizes four fields: the pubkey (48 bytes, two chunks), the
// withdrawal credentials (one chunk), the amount (uint64, little endian in
// one chunk) and the signature (96 bytes, three chunks padded to four).
func (d *DepositData) HashTreeRoot() [32]byte {
	var pk [2 * 32]byte
	copy(pk[:], d.Pubkey[:])
	pubkeyRoot := hasher(pk[:32], pk[32:])

	var sig [4 * 32]byte
	copy(sig[:], d.Signature[:])
	sigLeft := hasher(sig[:32], sig[32:64])
	sigRight := hasher(sig[64:96], sig[96:])
	signatureRoot := hasher(sigLeft[:], sigRight[:])

	var amount [32]byte
	binary.LittleEndian.PutUint64(amount[:8], d.Amount)

	left := hasher(pubkeyRoot[:], d.WithdrawalCredentials[:])
	right := hasher(amount[:], signatureRoot[:])

	return hasher(left[:], right[:])
}
