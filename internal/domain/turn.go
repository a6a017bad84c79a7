package domain

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r may be stored as a ChatTurn role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ChatTurn is a single persisted chat message. Turns are append-only and
// ordered by CreatedAt, ties broken by insertion order.
type ChatTurn struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// PromptMessage maps the turn onto the completion prompt shape.
func (t ChatTurn) PromptMessage() ChatMessage {
	return ChatMessage{Role: string(t.Role), Content: t.Content}
}
