// Package identity is the boundary to the session collaborator. Credential
// verification happens upstream; this side only trusts the resolved
// shopper identity carried on the request.
package identity

import (
	"encoding/json"
	"net/http"
)

const ShopperHeader = "X-Shopper-ID"

func ShopperID(r *http.Request) string {
	return r.Header.Get(ShopperHeader)
}

// Require rejects requests that arrive without a resolved shopper
// identity before they reach a handler.
func Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ShopperID(r) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "missing shopper identity"})
			return
		}
		next(w, r)
	}
}
