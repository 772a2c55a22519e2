package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	jwtutil "dosewise/pkg/jwt"

	"github.com/go-chi/chi/v5"
)

// ContextKey is a custom type for context keys
type ContextKey string

const (
	// ActorIDKey is the context key for the acting user's ID
	ActorIDKey ContextKey = "actor_id"
	// ActorNameKey is the context key for the actor's display name
	ActorNameKey ContextKey = "actor_name"
	// ActorRoleKey is the context key for the actor's role
	ActorRoleKey ContextKey = "actor_role"
)

// CapabilityChecker answers whether an actor may perform a capability on a
// patient's records. The check itself lives in an external identity service;
// the core only consumes the boolean.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, actorID, patientID, capability string) (bool, error)
}

// JWTAuthMiddleware creates a middleware for JWT authentication
func JWTAuthMiddleware(jwtManager *jwtutil.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				sendUnauthorized(w, "Missing authorization header")
				return
			}

			// Extract token from "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				sendUnauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwtManager.ValidateToken(parts[1])
			if err != nil {
				sendUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ActorIDKey, claims.ActorID)
			ctx = context.WithValue(ctx, ActorNameKey, claims.Name)
			ctx = context.WithValue(ctx, ActorRoleKey, string(claims.Role))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole checks that the authenticated actor has one of the given roles
func RequireRole(allowedRoles ...jwtutil.ActorRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roleValue, ok := r.Context().Value(ActorRoleKey).(string)
			if !ok || roleValue == "" {
				sendUnauthorized(w, "Actor role not found")
				return
			}

			role := jwtutil.ActorRole(roleValue)
			for _, allowed := range allowedRoles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}

			sendForbidden(w, "Insufficient permissions")
		})
	}
}

// RequireAdmin requires the Admin role
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(jwtutil.RoleAdmin)(next)
}

// AllowAllCapabilities grants every capability. Stands in until an identity
// service is wired.
type AllowAllCapabilities struct{}

func (AllowAllCapabilities) HasCapability(ctx context.Context, actorID, patientID, capability string) (bool, error) {
	return true, nil
}

// RequireCapability gates a patient-scoped route on the checker's answer.
// The patient is taken from the {patientId} URL param; actors always pass
// for their own records.
func RequireCapability(checker CapabilityChecker, capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := GetActorID(r.Context())
			patientID := chi.URLParam(r, "patientId")
			if actorID != "" && actorID == patientID {
				next.ServeHTTP(w, r)
				return
			}
			allowed, err := checker.HasCapability(r.Context(), actorID, patientID, capability)
			if err != nil || !allowed {
				sendForbidden(w, "Actor may not access this patient's records")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetActorID extracts the acting user's ID from context
func GetActorID(ctx context.Context) string {
	if actorID, ok := ctx.Value(ActorIDKey).(string); ok {
		return actorID
	}
	return ""
}

// GetActorRole extracts the actor's role from context
func GetActorRole(ctx context.Context) (jwtutil.ActorRole, bool) {
	role, ok := ctx.Value(ActorRoleKey).(string)
	if !ok {
		return "", false
	}
	return jwtutil.ActorRole(role), true
}

func sendUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   map[string]string{"code": "UNAUTHORIZED", "message": message},
	})
}

func sendForbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   map[string]string{"code": "FORBIDDEN", "message": message},
	})
}
