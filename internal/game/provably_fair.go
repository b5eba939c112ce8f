package game

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const (
	// Floats extracted per HMAC-SHA256 digest: eight 4-byte chunks.
	chunksPerDigest = 8

	MinClientSeedLen = 8
	MaxClientSeedLen = 64
)

// GenerateSeed creates a cryptographically secure 256-bit secret, hex-encoded.
func GenerateSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HashCommitment is the SHA-256 hex commitment published for a secret before
// any round may reference it.
func HashCommitment(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// deriveMessage builds the HMAC message for one digest block. Block 0 is
// "clientSeed:nonce"; block k appends ":k". The rule is permanent: changing
// it would break verification of every settled round.
func deriveMessage(clientSeed string, nonce uint64, block int) string {
	if block == 0 {
		return fmt.Sprintf("%s:%d", clientSeed, nonce)
	}
	return fmt.Sprintf("%s:%d:%d", clientSeed, nonce, block)
}

func deriveDigest(secret, clientSeed string, nonce uint64, block int) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(deriveMessage(clientSeed, nonce, block)))
	return h.Sum(nil)
}

// DeriveChunks returns count big-endian uint32 chunks from the digest
// stream for (secret, clientSeed, nonce). Deterministic forever for fixed
// inputs.
func DeriveChunks(secret, clientSeed string, nonce uint64, count int) []uint32 {
	chunks := make([]uint32, 0, count)
	for block := 0; len(chunks) < count; block++ {
		digest := deriveDigest(secret, clientSeed, nonce, block)
		for i := 0; i < chunksPerDigest && len(chunks) < count; i++ {
			chunks = append(chunks, binary.BigEndian.Uint32(digest[i*4:i*4+4]))
		}
	}
	return chunks
}

// DeriveFloats maps each chunk to a float in [0,1) by dividing by 2^32.
func DeriveFloats(secret, clientSeed string, nonce uint64, count int) []float64 {
	chunks := DeriveChunks(secret, clientSeed, nonce, count)
	floats := make([]float64, count)
	for i, c := range chunks {
		floats[i] = float64(c) / 4294967296.0
	}
	return floats
}

// DeriveInts maps each chunk into [0,n) by modulo. Used where a game needs
// symbol indexes rather than uniform floats.
func DeriveInts(secret, clientSeed string, nonce uint64, count int, n uint32) []int {
	chunks := DeriveChunks(secret, clientSeed, nonce, count)
	ints := make([]int, count)
	for i, c := range chunks {
		ints[i] = int(c % n)
	}
	return ints
}

// DigestHex exposes the block-0 digest for verification traces.
func DigestHex(secret, clientSeed string, nonce uint64) string {
	return hex.EncodeToString(deriveDigest(secret, clientSeed, nonce, 0))
}

// ValidClientSeed reports whether a caller-supplied seed is usable.
func ValidClientSeed(seed string) bool {
	return len(seed) >= MinClientSeedLen && len(seed) <= MaxClientSeedLen
}

// GenerateClientSeed produces a seed for callers that did not supply one.
func GenerateClientSeed() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
