package handlers

import (
	"net/http"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi"

	"ckbridge/hmacauth"
	"ckbridge/identity"
	"ckbridge/orchestrator"
)

// Transfer sends from the service's default account. Controllers only.
func (a *API) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := hmacauth.CallerFromContext(r.Context())
	if !ok {
		responseNoCaller(w)
		return
	}
	symbol := chi.URLParam(r, "asset")

	var req TransferRequest
	if err := decodeBody(r, &req); err != nil {
		a.Log.Debug().Err(err).Msg("cannot decode transfer request")
		responseBadRequest(w, "", "Cannot unmarshal input JSON")
		return
	}
	to, err := identity.ParseAccount(req.To)
	if err != nil {
		responseBadRequest(w, "to", "No account or invalid account provided")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		responseBadRequest(w, "amount", "Amount must be a non-negative integer")
		return
	}

	block, err := a.Bridge.Transfer(r.Context(), caller, symbol, to, amount)
	if err != nil {
		a.Log.Error().Err(err).Str("asset", symbol).Str("caller", caller.String()).Msg("transfer failed")
		responseError(w, err)
		return
	}
	responseJSON(w, &APIBlockResponse{Status: "ok", Asset: symbol, BlockIndex: block.String()}, http.StatusOK)
}

// Approve lets the asset's minter spend from the caller's subaccount.
func (a *API) Approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := hmacauth.CallerFromContext(r.Context())
	if !ok {
		responseNoCaller(w)
		return
	}
	symbol := chi.URLParam(r, "asset")

	var req ApproveRequest
	if err := decodeBody(r, &req); err != nil {
		responseBadRequest(w, "", "Cannot unmarshal input JSON")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		responseBadRequest(w, "amount", "Amount must be a non-negative integer")
		return
	}

	block, err := a.Bridge.Approve(r.Context(), caller, symbol, amount)
	if err != nil {
		a.Log.Error().Err(err).Str("asset", symbol).Str("caller", caller.String()).Msg("approve failed")
		responseError(w, err)
		return
	}
	responseJSON(w, &APIBlockResponse{Status: "ok", Asset: symbol, BlockIndex: block.String()}, http.StatusOK)
}

func (a *API) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := hmacauth.CallerFromContext(r.Context())
	if !ok {
		responseNoCaller(w)
		return
	}
	symbol := chi.URLParam(r, "asset")

	var req WithdrawRequest
	if err := decodeBody(r, &req); err != nil {
		responseBadRequest(w, "", "Cannot unmarshal input JSON")
		return
	}
	if !common.IsHexAddress(req.Recipient) {
		responseBadRequest(w, "recipient", "No ethereum address or invalid address provided")
		return
	}
	if err := ethav.Validate(common.HexToAddress(req.Recipient).Hex()); err != nil {
		a.Log.Debug().Err(err).Str("recipient", req.Recipient).Msg("recipient failed validation")
		responseBadRequest(w, "recipient", "No ethereum address or invalid address provided")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		responseBadRequest(w, "amount", "Amount must be a non-negative integer")
		return
	}

	receipt, err := a.Bridge.Withdraw(r.Context(), caller, orchestrator.WithdrawalRequest{
		Asset:     symbol,
		Amount:    amount,
		Recipient: common.HexToAddress(req.Recipient).Hex(),
	})
	if err != nil {
		a.Log.Error().Err(err).Str("asset", symbol).Str("caller", caller.String()).Msg("withdrawal failed")
		responseError(w, err)
		return
	}
	a.Log.Info().
		Str("asset", symbol).
		Str("operation", receipt.OperationID).
		Str("block", receipt.WithdrawBlockIndex.String()).
		Msg("withdrawal submitted")
	responseJSON(w, receipt, http.StatusOK)
}
