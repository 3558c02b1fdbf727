package handlers

import (
	"net/http"

	"github.com/go-chi/chi"

	"ckbridge/identity"
)

// ServiceBalance reads the balance of the service's default account.
func (a *API) ServiceBalance(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "asset")
	balance, err := a.Bridge.ServiceBalance(r.Context(), symbol)
	if err != nil {
		a.Log.Error().Err(err).Str("asset", symbol).Msg("cannot read service balance")
		responseError(w, err)
		return
	}
	responseJSON(w, &APIBalanceResponse{
		Asset:   symbol,
		Account: "service",
		Balance: balance.String(),
	}, http.StatusOK)
}

// Balance reads an account given as a principal or in ICRC-1 text form.
func (a *API) Balance(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "asset")
	text := chi.URLParam(r, "principal")

	account, err := identity.ParseAccount(text)
	if err != nil {
		responseBadRequest(w, "principal", "invalid principal or account: "+err.Error())
		return
	}

	balance, err := a.Bridge.BalanceOf(r.Context(), symbol, account)
	if err != nil {
		a.Log.Error().Err(err).Str("asset", symbol).Str("account", text).Msg("cannot read balance")
		responseError(w, err)
		return
	}
	responseJSON(w, &APIBalanceResponse{
		Asset:   symbol,
		Account: account.String(),
		Balance: balance.String(),
	}, http.StatusOK)
}
