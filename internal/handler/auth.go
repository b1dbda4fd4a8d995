package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/xenking/cupcake-checkout/pkg/httpmiddleware"
)

// Identity headers set by the upstream auth provider.
const (
	UserIDHeader    = "X-User-ID"
	SignatureHeader = "X-User-Signature"
)

const maxUserIDLen = 128

type userIDKey struct{}

// Sign returns the hex HMAC-SHA256 of userID keyed with secret.
func Sign(secret []byte, userID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// UserID returns the authenticated user stored by Authenticate.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// Authenticate verifies the signed identity headers and stores the user id in
// the request context. Anything else is rejected with 401.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(UserIDHeader)
			if !verify(secret, userID, r.Header.Get(SignatureHeader)) {
				httpmiddleware.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
		})
	}
}

func verify(secret []byte, userID, signature string) bool {
	if userID == "" || len(userID) > maxUserIDLen || signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(userID))
	return subtle.ConstantTimeCompare(got, mac.Sum(nil)) == 1
}
