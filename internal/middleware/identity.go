package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"yamo-chat/internal/domain"
	"yamo-chat/internal/observability"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	IdentityKey contextKey = "identity"
)

// SignToken produces the bearer token for a user id: "<userID>.<signature>"
// where the signature is HMAC-SHA256 over the id. The auth provider issues
// these; this helper exists for it and for tests.
func SignToken(userID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(userID))
	return userID + "." + hex.EncodeToString(mac.Sum(nil))
}

// VerifyToken checks the token signature and returns the embedded user id.
func VerifyToken(token, secret string) (string, bool) {
	dot := strings.LastIndex(token, ".")
	if dot <= 0 || dot == len(token)-1 {
		return "", false
	}
	userID := token[:dot]

	want := SignToken(userID, secret)
	if !hmac.Equal([]byte(token), []byte(want)) {
		return "", false
	}
	return userID, true
}

// Identity authenticates the request from its bearer token and resolves the
// caller's profile. Rejects tokens for users with no profile row: the auth
// provider may know them, but they cannot take part in conversations yet.
func Identity(secret string, profiles domain.ProfileRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
				return
			}

			userID, ok := VerifyToken(token, secret)
			if !ok {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}

			profile, err := profiles.GetByID(r.Context(), userID)
			if err != nil {
				http.Error(w, `{"error":"Unknown user"}`, http.StatusUnauthorized)
				return
			}

			identity := domain.Identity{UserID: profile.ID, DisplayName: profile.DisplayName}
			ctx := context.WithValue(r.Context(), UserIDKey, identity.UserID)
			ctx = context.WithValue(ctx, IdentityKey, identity)
			ctx = observability.WithUserID(ctx, identity.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header, falling back
// to the access_token query parameter for websocket upgrades, where browsers
// cannot set headers.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

func GetIdentity(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(domain.Identity)
	return identity, ok
}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, identity.UserID)
	return context.WithValue(ctx, IdentityKey, identity)
}
