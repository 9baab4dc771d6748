package agent

import "context"

type contextKey string

const (
	currentUserKey    contextKey = "current_user"
	conversationIDKey contextKey = "conversation_id"
)

// WithCurrentUser attaches the acting sales agent for tool handlers.
func WithCurrentUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, currentUserKey, user)
}

func CurrentUserFromContext(ctx context.Context) string {
	value, _ := ctx.Value(currentUserKey).(string)
	return value
}

func ConversationIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(conversationIDKey).(string)
	return value
}
