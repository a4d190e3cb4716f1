package hashtools

// file content hashes, printed as base36 text with hash type folded in,
// so stored checksums say how to verify them.

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"math/big"
	"strings"
	"sync"

	"github.com/minio/highwayhash"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sys/cpu"
)

const HashLength = 28

type HashTypeIDType byte

const (
	_ HashTypeIDType = iota // skip first to start with non-0

	SHA2_224        // can be faster if SHA2-256 crypto instructions are available
	BLAKE2b_224     // fastest on most 64bit CPUs without dedicated crypto instructions
	BLAKE3_224      // fastest with AVX2
	HighwayHash_224 // not cryptographic, but fine for catching changed files

	hashTypeIDMax = iota - 1
)

var hashTypeNames = [hashTypeIDMax]string{
	"sha2", "blake2b", "blake3", "highwayhash",
}

func (t HashTypeIDType) String() string {
	if t >= 1 && t <= hashTypeIDMax {
		return hashTypeNames[t-1]
	}
	return fmt.Sprintf("hash(%d)", byte(t))
}

var errBadHash = errors.New("malformed file hash")

// ParseHashType accepts names printed by String; "" and "auto" mean default.
func ParseHashType(s string) (HashTypeIDType, error) {
	s = strings.ToLower(s)
	if s == "" || s == "auto" {
		return defaultHashTypeID, nil
	}
	for i, n := range hashTypeNames {
		if n == s {
			return HashTypeIDType(i + 1), nil
		}
	}
	return 0, fmt.Errorf("unknown hash type %q", s)
}

// fixed key; we want stable checksums, not MAC
var hhKey [32]byte

type hasherFactoryType struct {
	newHasher func() hash.Hash
}

var hasherFactories = [hashTypeIDMax]hasherFactoryType{
	{newHasher: sha256.New224},
	{newHasher: func() hash.Hash { x, _ := blake2b.New(HashLength, nil); return x }},
	{newHasher: func() hash.Hash { return blake3.New() }},
	{newHasher: func() hash.Hash { x, _ := highwayhash.New(hhKey[:]); return x }},
}
var hashCtxPools [hashTypeIDMax]sync.Pool

var defaultHashTypeID HashTypeIDType

type hashCtxType struct {
	h       hash.Hash
	copyBuf *[32 * 1024]byte
	x       big.Int
	sumBuf  [1 + 64]byte // type byte + widest digest
}

func getHashCtx(typeID HashTypeIDType) *hashCtxType {
	s, _ := hashCtxPools[typeID-1].Get().(*hashCtxType)
	if s != nil {
		s.h.Reset()
	} else {
		s = &hashCtxType{
			h:       hasherFactories[typeID-1].newHasher(),
			copyBuf: new([32 * 1024]byte),
		}
	}
	return s
}

func autoPickDefaultHash() {
	// ARM64 SHA2 instructions are pretty much guaranteed gain
	if cpu.ARM64.HasSHA2 {
		defaultHashTypeID = SHA2_224
		return
	}
	if cpu.X86.HasAVX2 {
		defaultHashTypeID = BLAKE3_224
		return
	}
	defaultHashTypeID = BLAKE2b_224
}

func init() { autoPickDefaultHash() }

func DefaultHashType() HashTypeIDType { return defaultHashTypeID }

// MakeFileHash hashes r with default hash type.
// It expects file to be seeked at 0.
func MakeFileHash(r io.Reader) (string, error) {
	s, _, err := MakeCustomFileHash(r, defaultHashTypeID)
	return s, err
}

func MakeCustomFileHash(r io.Reader, typeID HashTypeIDType) (s string, h [HashLength]byte, e error) {
	if typeID < 1 || typeID > hashTypeIDMax {
		e = fmt.Errorf("unknown hash type %d", byte(typeID))
		return
	}
	hCtx := getHashCtx(typeID)
	defer hashCtxPools[typeID-1].Put(hCtx)

	// first byte - hash type
	hCtx.sumBuf[0] = byte(typeID)
	_, e = io.CopyBuffer(hCtx.h, r, hCtx.copyBuf[:])
	if e != nil {
		return
	}
	// wider digests are truncated
	hCtx.h.Sum(hCtx.sumBuf[1:][:0])
	copy(h[:], hCtx.sumBuf[1:])

	// convert to base36 number and print it
	hCtx.x.SetBytes(hCtx.sumBuf[:1+HashLength])
	xb := hCtx.x.Append(nil, 36)

	// flip (we want front bits to be more variable)
	for i, j := 0, len(xb)-1; i < j; i, j = i+1, j-1 {
		xb[i], xb[j] = xb[j], xb[i]
	}

	s = string(xb)
	return
}

// HashTypeOf tells which hash produced s.
func HashTypeOf(s string) (HashTypeIDType, error) {
	if s == "" {
		return 0, errBadHash
	}
	xb := []byte(s)
	for i, j := 0, len(xb)-1; i < j; i, j = i+1, j-1 {
		xb[i], xb[j] = xb[j], xb[i]
	}
	var x big.Int
	if _, ok := x.SetString(string(xb), 36); !ok || x.Sign() <= 0 {
		return 0, errBadHash
	}
	b := x.Bytes()
	if len(b) != 1+HashLength || b[0] < 1 || b[0] > hashTypeIDMax {
		return 0, errBadHash
	}
	return HashTypeIDType(b[0]), nil
}

// VerifyFileHash rehashes r using type recorded in s and compares.
func VerifyFileHash(r io.Reader, s string) (bool, error) {
	t, err := HashTypeOf(s)
	if err != nil {
		return false, err
	}
	got, _, err := MakeCustomFileHash(r, t)
	if err != nil {
		return false, err
	}
	return got == s, nil
}
