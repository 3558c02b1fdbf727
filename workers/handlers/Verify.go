package handlers

import (
	"net/http"

	"github.com/go-chi/chi"
)

// Verify checks a deposit hash against the asset's counterpart address.
// Without ?asset= the default asset is used.
func (a *API) Verify(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	symbol := r.URL.Query().Get("asset")
	if symbol == "" {
		symbol = a.DefaultAsset
	}
	asset, err := a.asset(symbol)
	if err != nil {
		responseError(w, err)
		return
	}

	tx, err := a.Verifier.Verify(r.Context(), asset, hash)
	if err != nil {
		a.Log.Info().Err(err).Str("asset", symbol).Str("hash", hash).Msg("verification rejected")
		responseError(w, err)
		return
	}
	responseJSON(w, tx, http.StatusOK)
}

// Receipt answers the serialized receipt envelope as is.
func (a *API) Receipt(w http.ResponseWriter, r *http.Request) {
	out, err := a.Verifier.RawReceipt(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		responseError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	responsePlain(w, []byte(out), http.StatusOK)
}
