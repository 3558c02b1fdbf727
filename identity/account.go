package identity

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"strings"
)

// Account is an ICRC-1 ledger account.
type Account struct {
	Owner      Principal
	Subaccount *Subaccount
}

func NewAccount(owner Principal, sub *Subaccount) Account {
	if sub != nil && sub.IsZero() {
		sub = nil
	}
	return Account{Owner: owner, Subaccount: sub}
}

// ParseAccount accepts "principal" or "principal-checksum.subaccounthex".
func ParseAccount(text string) (Account, error) {
	dot := strings.LastIndex(text, ".")
	if dot < 0 {
		p, err := ParsePrincipal(text)
		if err != nil {
			return Account{}, err
		}
		return Account{Owner: p}, nil
	}

	head, subHex := text[:dot], text[dot+1:]
	dash := strings.LastIndex(head, "-")
	if dash < 0 {
		return Account{}, fmt.Errorf("account %q: missing checksum", text)
	}
	ownerText, checksum := head[:dash], head[dash+1:]

	owner, err := ParsePrincipal(ownerText)
	if err != nil {
		return Account{}, err
	}
	if subHex == "" || strings.HasPrefix(subHex, "0") || len(subHex) > 64 {
		return Account{}, fmt.Errorf("account %q: subaccount is not canonical", text)
	}
	raw, err := hex.DecodeString(strings.Repeat("0", 64-len(subHex)) + subHex)
	if err != nil {
		return Account{}, fmt.Errorf("account %q: %w", text, err)
	}
	var sub Subaccount
	copy(sub[:], raw)

	if accountChecksum(owner, sub) != checksum {
		return Account{}, fmt.Errorf("account %q: checksum mismatch", text)
	}
	return NewAccount(owner, &sub), nil
}

func (a Account) String() string {
	if a.Subaccount == nil || a.Subaccount.IsZero() {
		return a.Owner.String()
	}
	subHex := strings.TrimLeft(hex.EncodeToString(a.Subaccount[:]), "0")
	return fmt.Sprintf("%s-%s.%s", a.Owner.String(), accountChecksum(a.Owner, *a.Subaccount), subHex)
}

func accountChecksum(owner Principal, sub Subaccount) string {
	h := crc32.NewIEEE()
	h.Write(owner)
	h.Write(sub[:])
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], h.Sum32())
	return strings.ToLower(principalEncoding.EncodeToString(sum[:]))
}

// accountJSON is the gateway wire shape of an account.
type accountJSON struct {
	Owner      string  `json:"owner"`
	Subaccount *string `json:"subaccount,omitempty"`
}

func (a Account) MarshalJSON() ([]byte, error) {
	out := accountJSON{Owner: a.Owner.String()}
	if a.Subaccount != nil {
		s := hex.EncodeToString(a.Subaccount[:])
		out.Subaccount = &s
	}
	return json.Marshal(out)
}

func (a *Account) UnmarshalJSON(data []byte) error {
	var in accountJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	owner, err := ParsePrincipal(in.Owner)
	if err != nil {
		return err
	}
	a.Owner = owner
	a.Subaccount = nil
	if in.Subaccount != nil {
		raw, err := hex.DecodeString(*in.Subaccount)
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("invalid subaccount %q", *in.Subaccount)
		}
		var sub Subaccount
		copy(sub[:], raw)
		a.Subaccount = &sub
	}
	return nil
}
