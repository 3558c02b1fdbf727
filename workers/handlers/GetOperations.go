package handlers

import (
	"net/http"

	"github.com/go-chi/chi"

	"ckbridge/types"
)

// GetOperations lists journaled withdrawals, e.g. /stats/approved for
// approvals whose withdraw step never completed.
func (a *API) GetOperations(w http.ResponseWriter, r *http.Request) {
	status := chi.URLParam(r, "status")

	ops, err := a.Bridge.Operations(r.Context(), status)
	if err != nil {
		if types.HasCode(err, types.ErrCodeStorage) {
			a.Log.Error().Err(err).Str("status", status).Msg("cannot read operations")
		}
		responseError(w, err)
		return
	}
	if ops == nil {
		ops = []*types.WithdrawalOperation{}
	}
	responseJSON(w, &APIOperationsResponse{Status: status, Operations: ops}, http.StatusOK)
}
