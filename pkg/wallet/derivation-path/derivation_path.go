package path

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// MaxDepth is the maximum number of elements of a path the device accepts.
const MaxDepth = 8

// DerivationPath is the data structure representing an HD path.
type DerivationPath []uint32

// ParseDerivationPath converts a derivation path in string format to a
// DerivationPath type.
func ParseDerivationPath(strPath string) (DerivationPath, error) {
	return parseDerivationPath(strPath, false)
}

// ParseAbsoluteDerivationPath is like ParseDerivationPath but requires the
// path to start with "m/", as every path sent to the device does.
func ParseAbsoluteDerivationPath(strPath string) (DerivationPath, error) {
	return parseDerivationPath(strPath, true)
}

func ParseRootDerivationPath(strPath string) (DerivationPath, error) {
	path, err := parseDerivationPath(strPath, true)
	if err != nil {
		return nil, err
	}
	if len(path) != 2 {
		return nil, ErrInvalidRootPathLen
	}
	if path[0] < hdkeychain.HardenedKeyStart || path[1] < hdkeychain.HardenedKeyStart {
		return nil, ErrInvalidRootPath
	}
	return path, nil
}

// Deserialize parses a path in the device encoding, see Serialize.
func Deserialize(buf []byte) (DerivationPath, error) {
	if len(buf) == 0 {
		return nil, ErrMissingDerivationPath
	}
	depth := int(buf[0])
	if depth > MaxDepth {
		return nil, ErrDerivationPathTooLong
	}
	if len(buf) != 1+4*depth {
		return nil, ErrMalformedSerializedPath
	}

	path := make(DerivationPath, 0, depth)
	for i := 0; i < depth; i++ {
		path = append(path, binary.BigEndian.Uint32(buf[1+4*i:]))
	}
	return path, nil
}

// Serialize encodes the path as the device expects it: the number of
// elements in one byte followed by each element as a big-endian uint32.
func (path DerivationPath) Serialize() ([]byte, error) {
	if len(path) > MaxDepth {
		return nil, ErrDerivationPathTooLong
	}

	buf := make([]byte, 1+4*len(path))
	buf[0] = byte(len(path))
	for i, elem := range path {
		binary.BigEndian.PutUint32(buf[1+4*i:], elem)
	}
	return buf, nil
}

// IsHardened returns whether every element of the path is hardened.
func (path DerivationPath) IsHardened() bool {
	for _, elem := range path {
		if elem < hdkeychain.HardenedKeyStart {
			return false
		}
	}
	return true
}

// String returns the absolute notation of the path, "m" for the master key.
func (path DerivationPath) String() string {
	result := "m"
	for _, component := range path {
		var hardened bool
		if component >= hdkeychain.HardenedKeyStart {
			component -= hdkeychain.HardenedKeyStart
			hardened = true
		}
		result = fmt.Sprintf("%s/%d", result, component)
		if hardened {
			result += "'"
		}
	}
	return result
}

func parseDerivationPath(
	strPath string, checkAbsolutePath bool,
) (DerivationPath, error) {
	if strPath == "" {
		return nil, ErrMissingDerivationPath
	}

	elems := strings.Split(strPath, "/")
	if containsEmptyString(elems) {
		return nil, ErrMalformedDerivationPath
	}
	if checkAbsolutePath {
		if strings.TrimSpace(elems[0]) != "m" {
			return nil, ErrRequiredAbsoluteDerivationPath
		}
	}
	if len(elems) < 2 {
		return nil, ErrMalformedDerivationPath
	}
	if strings.TrimSpace(elems[0]) == "m" {
		elems = elems[1:]
	}
	if len(elems) > MaxDepth {
		return nil, ErrDerivationPathTooLong
	}

	path := make(DerivationPath, 0, len(elems))
	for _, elem := range elems {
		elem = strings.TrimSpace(elem)
		var value uint32

		if strings.HasSuffix(elem, "'") || strings.HasSuffix(elem, "h") {
			value = hdkeychain.HardenedKeyStart
			elem = strings.TrimSpace(elem[:len(elem)-1])
		}

		// use big int for convertion
		bigval, ok := new(big.Int).SetString(elem, 0)
		if !ok {
			return nil, fmt.Errorf("invalid elem '%s' in path", elem)
		}

		max := math.MaxUint32 - value
		if bigval.Sign() < 0 || bigval.Cmp(big.NewInt(int64(max))) > 0 {
			if value == 0 {
				return nil, fmt.Errorf("elem %v must be in range [0, %d]", bigval, max)
			}
			return nil, fmt.Errorf("elem %v must be in hardened range [0, %d]", bigval, max)
		}
		value += uint32(bigval.Uint64())

		path = append(path, value)
	}

	return path, nil
}

func containsEmptyString(composedPath []string) bool {
	for _, s := range composedPath {
		if s == "" {
			return true
		}
	}
	return false
}
