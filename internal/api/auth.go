package api

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

const authRealm = `Basic realm="burstcam API"`

// withAuth marks an operation as protected by basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{{"basicAuth": {}}}
}

// noAuth marks an operation as public.
func noAuth() []map[string][]string {
	return []map[string][]string{}
}

// basicAuthMiddleware rejects requests to protected operations without the
// configured credentials. Browsers cannot set headers on EventSource and
// <img> requests, so the base64 "user:pass" pair is also accepted in the
// auth query parameter.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	want := []byte(username + ":" + password)

	return func(ctx huma.Context, next func(huma.Context)) {
		if op := ctx.Operation(); op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		got, msg := requestCredentials(ctx)
		if msg == "" && subtle.ConstantTimeCompare(got, want) != 1 {
			msg = "Invalid credentials"
		}
		if msg != "" {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg)
			return
		}
		next(ctx)
	}
}

// requestCredentials returns the decoded "user:pass" of a request, or a
// message explaining why there is none.
func requestCredentials(ctx huma.Context) ([]byte, string) {
	encoded := ctx.Query("auth")
	if header := ctx.Header("Authorization"); header != "" {
		var ok bool
		if encoded, ok = strings.CutPrefix(header, "Basic "); !ok {
			return nil, "Invalid authentication type"
		}
	}
	if encoded == "" {
		return nil, "Authentication required"
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "Invalid credentials format"
	}
	return decoded, ""
}
