package domain

import (
	"fmt"
	"time"
)

// ActionType enumerates what a user can do in a round.
type ActionType string

const (
	ActionLike    ActionType = "like"
	ActionComment ActionType = "comment"
	ActionShare   ActionType = "share"
	ActionForward ActionType = "forward"
	ActionReply   ActionType = "reply"
	ActionNoOp    ActionType = "noop"
)

// ParseActionType converts a string into an ActionType.
func ParseActionType(s string) (ActionType, error) {
	switch ActionType(s) {
	case ActionLike, ActionComment, ActionShare, ActionForward, ActionReply, ActionNoOp:
		return ActionType(s), nil
	default:
		return "", fmt.Errorf("unknown action type %q", s)
	}
}

// Meaningful reports whether the action counts towards conversion:
// anything except a no-op or a bare like.
func (t ActionType) Meaningful() bool {
	return t != ActionNoOp && t != ActionLike
}

// Action is an append-only fact describing one thing a user did.
// Actions are never mutated after creation.
type Action struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Type      ActionType `json:"type"`
	TargetID  string     `json:"target_id"`
	Content   string     `json:"content,omitempty"`
	Round     int        `json:"round"`
	CreatedAt time.Time  `json:"created_at"`
}

// NoOp builds the degraded action recorded when an agent times out,
// errors, or declines to act in a round.
func NoOp(userID, targetID string, round int) Action {
	return Action{
		UserID:    userID,
		Type:      ActionNoOp,
		TargetID:  targetID,
		Round:     round,
		CreatedAt: time.Now(),
	}
}
