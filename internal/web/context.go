package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/LandRegistry/internal/core"
)

// withClient tags ctx with the uploader's address and user agent.
// RemoteAddr has already been resolved by TrustedRealIP.
func withClient(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return core.ContextWithClient(ctx, ip, r.UserAgent())
}
