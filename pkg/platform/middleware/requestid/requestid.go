// Package requestid assigns a correlation id to every request. Inbound
// X-Request-ID headers are honored so ids survive proxy hops; otherwise a
// fresh one is generated. The id is echoed back on the response.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"curator/pkg/requestcontext"
)

const Header = "X-Request-ID"

// Middleware stores the correlation id in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(Header, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
