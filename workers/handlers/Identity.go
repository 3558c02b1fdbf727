package handlers

import (
	"net/http"

	"github.com/go-chi/chi"

	"ckbridge/types"
)

func (a *API) ListIdentities(w http.ResponseWriter, r *http.Request) {
	entries := a.Identities.All()
	out := make([]APIIdentityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, APIIdentityResponse{Name: e.Name, Value: e.Value})
	}
	responseJSON(w, out, http.StatusOK)
}

func (a *API) GetIdentity(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	value, ok := a.Identities.Lookup(name)
	if !ok {
		responseJSON(w, &APIErrorResponse{
			Status:  "error",
			Code:    types.ErrCodeInvalidArgument,
			Field:   "name",
			Message: "unknown identity " + name,
		}, http.StatusNotFound)
		return
	}
	responseJSON(w, &APIIdentityResponse{Name: name, Value: value}, http.StatusOK)
}

// DepositAddress answers the bytes32 form of the service's subaccount, the
// value a depositor passes to the minter contract.
func (a *API) DepositAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := a.Bridge.DepositAddress()
	if err != nil {
		responseError(w, err)
		return
	}
	responseJSON(w, &APIDepositAddressResponse{Address: addr}, http.StatusOK)
}
