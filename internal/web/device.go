package web

import (
	"context"
	"net"
	"net/http"
	"time"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/google/uuid"
)

type deviceContextKey struct{}

const deviceCookieMaxAge = 400 * 24 * time.Hour

// DeviceFromContext returns the device key assigned by the device middleware.
func DeviceFromContext(ctx context.Context) string {
	v, _ := ctx.Value(deviceContextKey{}).(string)
	return v
}

// deviceMiddleware gives every browser a stable device key in a cookie and puts
// the key, the client address and the user agent into the request context.
func deviceMiddleware(cookieName string, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if c, err := r.Cookie(cookieName); err == nil {
				if id, err := uuid.Parse(c.Value); err == nil {
					key = id.String()
				}
			}
			if key == "" {
				key = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    key,
					Path:     "/",
					MaxAge:   int(deviceCookieMaxAge / time.Second),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), deviceContextKey{}, key)
			ctx = portalAuth.WithClientIP(ctx, clientIP(r))
			ctx = portalAuth.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP returns the host part of RemoteAddr, which chi's RealIP middleware has
// already replaced with the forwarded address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
