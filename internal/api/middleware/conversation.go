package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

// ConversationKey is the context key for the conversation key of a request.
const ConversationKey contextKey = "conversation"

// conversationSlot carries the key chosen by an inner route back out to
// middleware that ran earlier.
type conversationSlot struct{ key string }

const slotKey contextKey = "conversation_slot"

// WithConversationSlot must run before Logger for the key to be logged.
func WithConversationSlot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), slotKey, &conversationSlot{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Conversation reads the {key} URL parameter, rejects blank keys and stores
// the key in the request context and the active span.
func Conversation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(chi.URLParam(r, "key"))
		if key == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "conversation key required"})
			return
		}

		ctx := context.WithValue(r.Context(), ConversationKey, key)
		if slot, ok := ctx.Value(slotKey).(*conversationSlot); ok {
			slot.key = key
		}
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("relay.conversation", key))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetConversation returns the conversation key of the request, or "".
func GetConversation(ctx context.Context) string {
	if v, ok := ctx.Value(ConversationKey).(string); ok {
		return v
	}
	if slot, ok := ctx.Value(slotKey).(*conversationSlot); ok {
		return slot.key
	}
	return ""
}
