package server

import (
	"context"
	"log/slog"
	"net/http"

	"tailscale.com/client/tailscale/apitype"
)

type contextKey int

const userInfoKey contextKey = iota

// UserInfo identifies the caller.
type UserInfo struct {
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

var devUser = UserInfo{Login: "local", DisplayName: "Local Dev User"}

// WhoIser is the part of the tailscale local client used to resolve callers.
type WhoIser interface {
	WhoIs(ctx context.Context, remoteAddr string) (*apitype.WhoIsResponse, error)
}

// DevIdentity attaches the fixed local user to every request.
func DevIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userInfoKey, devUser)))
	})
}

// TailscaleIdentity resolves the caller's tailnet login. Requests whose peer
// cannot be resolved are rejected.
func TailscaleIdentity(lc WhoIser, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who, err := lc.WhoIs(r.Context(), r.RemoteAddr)
			if err != nil || who.UserProfile == nil {
				log.Warn("tailscale whois failed", "remote", r.RemoteAddr, "error", err)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown tailnet peer"})
				return
			}
			info := UserInfo{Login: who.UserProfile.LoginName, DisplayName: who.UserProfile.DisplayName}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userInfoKey, info)))
		})
	}
}

func userInfoFromContext(r *http.Request) UserInfo {
	if info, ok := r.Context().Value(userInfoKey).(UserInfo); ok {
		return info
	}
	return devUser
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}
