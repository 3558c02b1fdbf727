package handlers

import (
	"encoding/json"

	"ckbridge/ICRPC"
	"ckbridge/types"
)

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// APIErrorResponse is what every failed call answers with.
type APIErrorResponse struct {
	Status  string                 `json:"status"`
	Code    types.ErrorCode        `json:"code,omitempty"`
	Message string                 `json:"message"`
	Asset   string                 `json:"asset,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
	// ledger or minter rejection, verbatim
	Reject *ICRPC.RejectError `json:"reject,omitempty"`
}

type APIStateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type APIHealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type APIIdentityResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type APIDepositAddressResponse struct {
	Address string `json:"address"`
}

type APIBalanceResponse struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

type APIBlockResponse struct {
	Status     string `json:"status"`
	Asset      string `json:"asset"`
	BlockIndex string `json:"blockIndex"`
}

type APIHashesResponse struct {
	Asset  string   `json:"asset"`
	Hashes []string `json:"hashes"`
}

type APIHashStatusResponse struct {
	Asset    string             `json:"asset"`
	Statuses []types.HashStatus `json:"statuses"`
}

type APIOperationsResponse struct {
	Status     string                       `json:"status"`
	Operations []*types.WithdrawalOperation `json:"operations"`
}

type TransferRequest struct {
	To     string      `json:"to"`
	Amount json.Number `json:"amount"`
}

type ApproveRequest struct {
	Amount json.Number `json:"amount"`
}

type WithdrawRequest struct {
	Amount    json.Number `json:"amount"`
	Recipient string      `json:"recipient"`
}

type RecordHashRequest struct {
	Hash string `json:"hash"`
}
