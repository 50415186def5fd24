package tenant

import (
	"net/http"

	"github.com/gorilla/mux"
)

// HeaderName is the request header carrying the tenant identity.
const HeaderName = "x-tenant-id"

// Extractor produces a tenant id from an inbound request. Authentication
// middleware may install its own extractor; the dispatch layer only depends
// on this signature.
type Extractor func(r *http.Request) string

// DefaultExtractor reads the x-tenant-id header, then the {tenant} path
// segment, then falls back to the sentinel. An empty sentinel disables the
// fallback, so requests without a tenant identity fail validation instead of
// being merged into one tenant's data.
func DefaultExtractor(sentinel string) Extractor {
	return func(r *http.Request) string {
		if id := r.Header.Get(HeaderName); id != "" {
			return id
		}
		if id := mux.Vars(r)["tenant"]; id != "" {
			return id
		}
		return sentinel
	}
}
