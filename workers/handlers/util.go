package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strings"

	"ckbridge/ICRPC"
	"ckbridge/types"
)

const maxBodySize = 1 << 20

func responseJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func responsePlain(w http.ResponseWriter, data []byte, code int) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	w.Write(data)
}

func httpStatus(err error) int {
	var te *ICRPC.TransportError
	if errors.As(err, &te) {
		return http.StatusBadGateway
	}
	switch types.CodeOf(err) {
	case types.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case types.ErrCodeUnauthorized:
		return http.StatusForbidden
	case types.ErrCodeUnknownAsset, types.ErrCodeReceiptNotFound:
		return http.StatusNotFound
	case types.ErrCodeInconsistentSources:
		return http.StatusConflict
	case types.ErrCodeTransactionFailed, types.ErrCodeDestinationMismatch,
		types.ErrCodeApprovalFailed, types.ErrCodeWithdrawalFailed, types.ErrCodeTransferFailed:
		return http.StatusUnprocessableEntity
	case types.ErrCodeTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func responseError(w http.ResponseWriter, err error) {
	resp := &APIErrorResponse{Status: "error", Message: err.Error()}

	var be *types.BridgeError
	if errors.As(err, &be) {
		resp.Code = be.Code
		resp.Message = be.Message
		resp.Asset = be.Asset
		resp.Context = be.Context
		if be.Cause != nil {
			resp.Message += ": " + be.Cause.Error()
		}
	}
	if reject, ok := ICRPC.IsReject(err); ok {
		resp.Reject = reject
	}
	responseJSON(w, resp, httpStatus(err))
}

func responseBadRequest(w http.ResponseWriter, field, message string) {
	responseJSON(w, &APIErrorResponse{
		Status:  "error",
		Code:    types.ErrCodeInvalidArgument,
		Field:   field,
		Message: message,
	}, http.StatusBadRequest)
}

func responseNoCaller(w http.ResponseWriter) {
	responseJSON(w, &APIErrorResponse{
		Status:  "error",
		Code:    types.ErrCodeUnauthorized,
		Message: "caller identity required",
	}, http.StatusUnauthorized)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.UseNumber()
	return dec.Decode(v)
}

// parseAmount accepts a non-negative base-10 integer in the ledger's smallest
// unit. Zero is passed on; the ledger or minter decides what it means.
func parseAmount(n json.Number) (*big.Int, bool) {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return nil, false
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}
