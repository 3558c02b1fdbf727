package ICRPC

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"time"

	"github.com/ybbus/jsonrpc"
)

// RejectError is a rejection reported by the ledger or the minter, e.g.
// {"InsufficientFunds": {"balance": 10}}. The payload is kept verbatim so
// callers can react to the variant.
type RejectError struct {
	Method  string
	Kind    string
	Payload json.RawMessage
}

func (e *RejectError) Error() string {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return fmt.Sprintf("%s rejected: %s", e.Method, e.Kind)
	}
	return fmt.Sprintf("%s rejected: %s %s", e.Method, e.Kind, string(e.Payload))
}

func (e *RejectError) MarshalJSON() ([]byte, error) {
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return json.Marshal(map[string]json.RawMessage{e.Kind: payload})
}

// TransportError wraps failures to reach the collaborator or to decode its
// answer. It is distinct from a RejectError.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func IsReject(err error) (*RejectError, bool) {
	var re *RejectError
	ok := errors.As(err, &re)
	return re, ok
}

func newRPCClient(endpoint string, timeout time.Duration) jsonrpc.RPCClient {
	return jsonrpc.NewClientWithOpts(endpoint, &jsonrpc.RPCClientOpts{
		HTTPClient: &http.Client{Timeout: timeout},
	})
}

// call runs one JSON-RPC method and decodes its result into out.
func call(client jsonrpc.RPCClient, out interface{}, method string, params interface{}) error {
	resp, err := client.Call(method, params)
	if err != nil {
		return &TransportError{Method: method, Err: err}
	}
	if resp.Error != nil {
		return &TransportError{Method: method, Err: resp.Error}
	}
	if err := resp.GetObject(out); err != nil {
		return &TransportError{Method: method, Err: fmt.Errorf("malformed result: %w", err)}
	}
	return nil
}

// result decodes the {"Ok": ...} / {"Err": {"Variant": ...}} envelope
// shared by every update method.
type result struct {
	Ok  json.RawMessage            `json:"Ok"`
	Err map[string]json.RawMessage `json:"Err"`
}

func (r result) decode(method string, ok interface{}) error {
	if len(r.Err) > 0 {
		kinds := make([]string, 0, len(r.Err))
		for k := range r.Err {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		return &RejectError{Method: method, Kind: kinds[0], Payload: r.Err[kinds[0]]}
	}
	if len(r.Ok) == 0 {
		return &TransportError{Method: method, Err: errors.New("result is neither Ok nor Err")}
	}
	if err := json.Unmarshal(r.Ok, ok); err != nil {
		return &TransportError{Method: method, Err: fmt.Errorf("malformed Ok value: %w", err)}
	}
	return nil
}

// Nat is an unbounded natural number that travels as a bare JSON number.
type Nat struct {
	*big.Int
}

func NewNat(v *big.Int) Nat {
	if v == nil {
		v = new(big.Int)
	}
	return Nat{Int: new(big.Int).Set(v)}
}

func (n Nat) MarshalJSON() ([]byte, error) {
	if n.Int == nil {
		return []byte("0"), nil
	}
	return []byte(n.Int.String()), nil
}

func (n *Nat) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return fmt.Errorf("invalid nat %q", string(data))
	}
	n.Int = v
	return nil
}
