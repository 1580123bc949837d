package oracle

import (
	"testing"

	"github.com/echolabs/echosim/internal/domain"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantType  domain.ActionType
		wantAlias string
		wantErr   bool
	}{
		{
			name:     "plain comment decision",
			raw:      `{"action": "comment_post", "target_id": "post_1", "content": "nice", "reasoning": "r"}`,
			wantType: domain.ActionComment,
		},
		{
			name:     "reply decision",
			raw:      `{"action": "reply_comment", "target_id": "comment_2", "content": "agreed"}`,
			wantType: domain.ActionReply,
		},
		{
			name:     "no action needs no target",
			raw:      `{"action": "no_action", "reasoning": "too passive"}`,
			wantType: domain.ActionNoOp,
		},
		{
			name:     "json wrapped in prose",
			raw:      "Sure! Here is my decision:\n```json\n{\"action\": \"like_post\", \"target_id\": \"post_1\"}\n```",
			wantType: domain.ActionLike,
		},
		{
			name:    "missing target",
			raw:     `{"action": "like_post"}`,
			wantErr: true,
		},
		{
			name:    "unknown action",
			raw:     `{"action": "subscribe", "target_id": "post_1"}`,
			wantErr: true,
		},
		{
			name:    "no json at all",
			raw:     "I would rather not say.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, err := parseDecision(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got %+v", act)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDecision failed: %v", err)
			}
			if act.Type != tt.wantType {
				t.Errorf("Expected type %s, got %s", tt.wantType, act.Type)
			}
		})
	}
}
