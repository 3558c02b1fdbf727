package handlers

import (
	"net/http"

	"github.com/go-chi/chi"

	"ckbridge/types"
)

func (a *API) RecordHash(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "asset")

	var req RecordHashRequest
	if err := decodeBody(r, &req); err != nil {
		responseBadRequest(w, "", "Cannot unmarshal input JSON")
		return
	}
	if err := a.Registry.Record(r.Context(), symbol, req.Hash); err != nil {
		if types.HasCode(err, types.ErrCodeStorage) {
			a.Log.Error().Err(err).Str("asset", symbol).Msg("cannot record hash")
		}
		responseError(w, err)
		return
	}
	responseJSON(w, &APIResponse{Status: "ok"}, http.StatusCreated)
}

func (a *API) ListHashes(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "asset")
	hashes, err := a.Registry.List(r.Context(), symbol)
	if err != nil {
		responseError(w, err)
		return
	}
	responseJSON(w, &APIHashesResponse{Asset: symbol, Hashes: hashes}, http.StatusOK)
}

// HashStatuses answers what the reconciler last found for each hash.
func (a *API) HashStatuses(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "asset")
	if _, err := a.asset(symbol); err != nil {
		responseError(w, err)
		return
	}
	statuses, err := a.Statuses.HashStatuses(r.Context(), symbol)
	if err != nil {
		responseError(w, types.NewError(types.ErrCodeStorage, "cannot read hash statuses", err).WithAsset(symbol))
		return
	}
	if statuses == nil {
		statuses = []types.HashStatus{}
	}
	responseJSON(w, &APIHashStatusResponse{Asset: symbol, Statuses: statuses}, http.StatusOK)
}
