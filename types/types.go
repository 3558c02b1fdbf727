package types

import (
	"encoding/json"
	"fmt"
)

// AssetKind tells the orchestrator which withdrawal shape an asset uses.
type AssetKind int

const (
	// native ckETH: the minter burns from the caller balance directly
	NativeWrappedAsset AssetKind = iota + 1
	// ckERC20: approve the minter first, then withdraw
	FungibleWrappedAsset
)

func (k AssetKind) String() string {
	switch k {
	case NativeWrappedAsset:
		return "native"
	case FungibleWrappedAsset:
		return "fungible"
	}
	return fmt.Sprintf("AssetKind(%d)", int(k))
}

// Asset is immutable and defined at configuration time.
type Asset struct {
	Symbol             string    `json:"symbol"`
	Kind               AssetKind `json:"kind"`
	LedgerID           string    `json:"ledgerId"`
	MinterID           string    `json:"minterId"`
	CounterpartAddress string    `json:"counterpartAddress"` // bridge/minter address on the external chain
	Erc20Address       string    `json:"erc20Address,omitempty"`
}

func (a Asset) MarshalJSON() ([]byte, error) {
	type plain Asset
	return json.Marshal(struct {
		plain
		Kind string `json:"kind"`
	}{plain: plain(a), Kind: a.Kind.String()})
}

type LogEntry struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
}

// ReceiptData is the canonical form of a receipt as agreed by the providers.
type ReceiptData struct {
	To              string     `json:"to"`
	Status          string     `json:"status"`
	TransactionHash string     `json:"transaction_hash"`
	BlockNumber     string     `json:"block_number"`
	From            string     `json:"from"`
	Logs            []LogEntry `json:"logs"`
}

// VerifiedTransaction only exists for a receipt that was present, agreed by
// every queried provider and successful.
type VerifiedTransaction ReceiptData

type QueryOutcome int

const (
	OutcomeAgreed QueryOutcome = iota + 1
	OutcomeDisagreement
	OutcomeTransportFailure
)

func (o QueryOutcome) String() string {
	switch o {
	case OutcomeAgreed:
		return "agreed"
	case OutcomeDisagreement:
		return "disagreement"
	case OutcomeTransportFailure:
		return "transport_failure"
	}
	return "unknown"
}

// ProviderResult is what a single provider answered.
type ProviderResult struct {
	Provider string       `json:"provider"`
	Receipt  *ReceiptData `json:"receipt,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// ReceiptQueryResult is produced once per verification attempt and never persisted.
// Receipt is only meaningful for OutcomeAgreed, where nil means every provider
// reported the transaction as unknown.
type ReceiptQueryResult struct {
	Outcome   QueryOutcome
	Receipt   *ReceiptData
	Providers []ProviderResult
	Reason    string
}

func Agreed(receipt *ReceiptData, providers []ProviderResult) ReceiptQueryResult {
	return ReceiptQueryResult{Outcome: OutcomeAgreed, Receipt: receipt, Providers: providers}
}

func Disagreement(providers []ProviderResult) ReceiptQueryResult {
	return ReceiptQueryResult{Outcome: OutcomeDisagreement, Providers: providers, Reason: "providers returned inconsistent results"}
}

func TransportFailure(reason string, providers []ProviderResult) ReceiptQueryResult {
	return ReceiptQueryResult{Outcome: OutcomeTransportFailure, Providers: providers, Reason: reason}
}

// withdrawal journal statuses
const (
	StatusApproving    = "approving"
	StatusApproved     = "approved"
	StatusApproveFail  = "approvefail"
	StatusWithdrawing  = "withdrawing"
	StatusSubmitted    = "submitted"
	StatusWithdrawFail = "withdrawfail"
)

// IsWithdrawalStatus reports whether s is a journal status.
func IsWithdrawalStatus(s string) bool {
	switch s {
	case StatusApproving, StatusApproved, StatusApproveFail, StatusWithdrawing, StatusSubmitted, StatusWithdrawFail:
		return true
	}
	return false
}

// IsTerminalStatus reports whether a withdrawal in status s will not move on.
func IsTerminalStatus(s string) bool {
	return s == StatusSubmitted || s == StatusApproveFail || s == StatusWithdrawFail
}

// WithdrawalOperation tracks one orchestrated withdrawal, including partial
// progress such as an approval whose withdraw step never ran.
type WithdrawalOperation struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	Asset              string `json:"asset"`
	Caller             string `json:"caller"`
	Amount             string `json:"amount"` // ledger smallest unit
	Recipient          string `json:"recipient"`
	ApprovalBlockIndex string `json:"approvalBlockIndex,omitempty"` // filled when the ledger accepted the approval
	WithdrawBlockIndex string `json:"withdrawBlockIndex,omitempty"` // filled when the minter accepted the withdrawal
	TsCreated          int64  `json:"tsCreated"`
	TsUpdated          int64  `json:"tsUpdated"`
	Message            string `json:"message,omitempty"` // messsages that help to track processing/errors
}

// HashStatus is the reconciler's view of a claimed hash. It never changes
// the registry itself.
type HashStatus struct {
	Hash      string `json:"hash"`
	Result    string `json:"result"` // verified or the rejecting error code
	Message   string `json:"message,omitempty"`
	CheckedAt int64  `json:"checkedAt"`
}
