package identity

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MaxPrincipalLength is the longest principal the ledgers accept.
const MaxPrincipalLength = 29

var principalEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

var (
	ErrEmptyPrincipal    = errors.New("empty principal")
	ErrPrincipalTooLong  = errors.New("principal too long")
	ErrPrincipalChecksum = errors.New("principal checksum mismatch")
)

// Principal is the raw byte form of a caller or canister identity.
type Principal []byte

// ParsePrincipal decodes the dashed textual form, e.g. "2vxsx-fae".
func ParsePrincipal(text string) (Principal, error) {
	if text == "" {
		return nil, ErrEmptyPrincipal
	}
	compact := strings.ToUpper(strings.ReplaceAll(text, "-", ""))
	raw, err := principalEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("decode principal %q: %w", text, err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("principal %q: %w", text, ErrEmptyPrincipal)
	}
	body := raw[4:]
	if len(body) > MaxPrincipalLength {
		return nil, fmt.Errorf("principal %q: %w", text, ErrPrincipalTooLong)
	}
	if binary.BigEndian.Uint32(raw[:4]) != crc32.ChecksumIEEE(body) {
		return nil, fmt.Errorf("principal %q: %w", text, ErrPrincipalChecksum)
	}
	p := Principal(body)
	// reject non-canonical spellings so one identity has exactly one text
	if p.String() != text {
		return nil, fmt.Errorf("principal %q is not in canonical form", text)
	}
	return p, nil
}

func MustParsePrincipal(text string) Principal {
	p, err := ParsePrincipal(text)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Principal) String() string {
	buf := make([]byte, 4+len(p))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE(p))
	copy(buf[4:], p)
	enc := strings.ToLower(principalEncoding.EncodeToString(buf))

	var sb strings.Builder
	for i := 0; i < len(enc); i += 5 {
		if i > 0 {
			sb.WriteByte('-')
		}
		end := i + 5
		if end > len(enc) {
			end = len(enc)
		}
		sb.WriteString(enc[i:end])
	}
	return sb.String()
}

func (p Principal) Equal(other Principal) bool {
	return string(p) == string(other)
}

// Subaccount is a 32 byte sub-identity within one ledger account.
type Subaccount [32]byte

// SubaccountFromPrincipal derives the subaccount used to segregate a user's
// funds inside the service's ledger account: length byte, principal bytes,
// zero padding.
func SubaccountFromPrincipal(p Principal) Subaccount {
	var sub Subaccount
	sub[0] = byte(len(p))
	copy(sub[1:], p)
	return sub
}

func (s Subaccount) IsZero() bool {
	return s == Subaccount{}
}

// Hex renders the subaccount as a 0x prefixed bytes32 value, the form the
// minter expects for deposits.
func (s Subaccount) Hex() string {
	return hexutil.Encode(s[:])
}
