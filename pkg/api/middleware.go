package api

import (
	"net/http"

	"github.com/gstpilot/billing/pkg/httputil"
	"github.com/gstpilot/billing/pkg/observability"
)

// ownerIDHeader carries the authenticated account owner. Authentication
// itself happens upstream; this service trusts the header.
const ownerIDHeader = "X-Owner-ID"

// OwnerIDMiddleware extracts the owner id header into the request context.
// Requests without it are rejected, except the webhook route which is called
// by the payment provider, not an owner.
func OwnerIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.Header.Get(ownerIDHeader)
		if ownerID == "" {
			httputil.WriteUnauthorized(w, ownerIDHeader+" header is required")
			return
		}

		ctx := observability.WithOwnerID(r.Context(), ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerID reads the owner id the middleware stored on the context.
func ownerID(r *http.Request) string {
	return observability.GetOwnerID(r.Context())
}
