package handlers

import (
	"net/http"
)

// kept for clients of the previous bridge API
func State(w http.ResponseWriter, r *http.Request) {
	responseJSON(w, &APIStateResponse{
		Status: "ok",
	}, http.StatusOK)
}
