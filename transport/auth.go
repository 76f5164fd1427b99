package transport

import (
	"context"
	"net/http"

	"github.com/twitchtv/twirp"
)

// withBearerToken attaches an Authorization header to the outgoing twirp
// request carried on ctx, the mechanism LiveKit's generated clients use to
// authenticate server-to-server RPCs.
func withBearerToken(ctx context.Context, jwt string) context.Context {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+jwt)
	ctx, err := twirp.WithHTTPRequestHeaders(ctx, header)
	if err != nil {
		// Only fails on a nil/malformed header, which cannot happen here.
		return ctx
	}
	return ctx
}
