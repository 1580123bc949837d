package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/echolabs/echosim/internal/domain"
)

// wireDecision is the JSON shape the oracle is asked to return.
type wireDecision struct {
	Action    string `json:"action"`
	TargetID  string `json:"target_id"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning"`
}

// jsonObjectRe extracts an embedded JSON object when the oracle wraps
// its reply in prose or code fences.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

var errNoDecision = errors.New("no JSON decision in oracle reply")

// parseDecision turns a raw oracle reply into an action. The user id
// and round are stamped later by the agent.
func parseDecision(raw string) (domain.Action, error) {
	var d wireDecision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		match := jsonObjectRe.FindString(raw)
		if match == "" {
			return domain.Action{}, errNoDecision
		}
		if err := json.Unmarshal([]byte(match), &d); err != nil {
			return domain.Action{}, fmt.Errorf("decode decision: %w", err)
		}
	}

	typ, err := mapWireAction(d.Action)
	if err != nil {
		return domain.Action{}, err
	}
	if typ != domain.ActionNoOp && d.TargetID == "" {
		return domain.Action{}, fmt.Errorf("decision %q is missing target_id", d.Action)
	}

	return domain.Action{
		Type:      typ,
		TargetID:  d.TargetID,
		Content:   d.Content,
		CreatedAt: time.Now(),
	}, nil
}

func mapWireAction(name string) (domain.ActionType, error) {
	switch name {
	case "like_post", "like_comment", "like":
		return domain.ActionLike, nil
	case "comment_post", "comment":
		return domain.ActionComment, nil
	case "reply_comment", "comment_comment", "reply":
		return domain.ActionReply, nil
	case "share_post", "share":
		return domain.ActionShare, nil
	case "forward_post", "forward":
		return domain.ActionForward, nil
	case "no_action", "noop", "":
		return domain.ActionNoOp, nil
	default:
		return "", fmt.Errorf("unknown decision action %q", name)
	}
}
