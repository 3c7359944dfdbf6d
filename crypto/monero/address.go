package monero

import (
	"fmt"

	"golang.org/x/crypto/sha3"
)

// network address prefixes (varint-encoded network bytes), mainnet and
// stagenet standard addresses.
const (
	mainnetPrefix  = 18
	stagenetPrefix = 24
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// encodedBlockSizes maps a full-block byte length to its encoded base58 character
// length, per Monero's block-wise base58 variant (8-byte blocks -> 11
// chars, with a final partial block of fewer bytes encoding to fewer
// chars).
var encodedBlockSizes = [...]int{0, 2, 3, 5, 6, 7, 9, 10, 11}

// Address is a standard (non-subaddress, non-integrated) Monero address:
// a network prefix plus a public spend/view key pair, base58-encoded with
// a 4-byte Keccak-256 checksum.
type Address string

// StandardAddress encodes kp as a standard address on the given network
// ("mainnet" or "stagenet").
func StandardAddress(kp *PublicKeyPair, network string) (Address, error) {
	var prefix byte
	switch network {
	case "mainnet":
		prefix = mainnetPrefix
	case "stagenet":
		prefix = stagenetPrefix
	default:
		return "", fmt.Errorf("unknown monero network %q", network)
	}

	data := make([]byte, 0, 1+32+32+4)
	data = append(data, prefix)
	data = append(data, kp.SpendKey().Bytes()...)
	data = append(data, kp.ViewKey().Bytes()...)

	checksum := keccak256(data)[:4]
	data = append(data, checksum...)

	return Address(base58EncodeBlocks(data)), nil
}

func keccak256(b []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return h.Sum(nil)
}

func base58EncodeBlocks(data []byte) string {
	var out []byte
	for i := 0; i < len(data); i += 8 {
		end := i + 8
		if end > len(data) {
			end = len(data)
		}
		block := data[i:end]
		out = append(out, base58EncodeBlock(block)...)
	}
	return string(out)
}

// base58EncodeBlock encodes one up-to-8-byte block by repeated
// divide-by-58, matching Monero's block-wise base58 variant (as opposed
// to Bitcoin's whole-buffer base58, which pads differently).
func base58EncodeBlock(block []byte) []byte {
	encodedLen := encodedBlockSizes[len(block)]
	buf := append([]byte(nil), block...)

	digits := make([]byte, encodedLen)
	for i := encodedLen - 1; i >= 0; i-- {
		var rem uint32
		for j, v := range buf {
			cur := rem*256 + uint32(v)
			buf[j] = byte(cur / 58)
			rem = cur % 58
		}
		digits[i] = base58Alphabet[rem]
	}
	return digits
}
