package oracle

import (
	"fmt"
	"strings"

	"github.com/echolabs/echosim/internal/agent"
	"github.com/echolabs/echosim/internal/domain"
)

const decisionSystemPrompt = "You are a social-media user behavior simulator. " +
	"Given a user profile and the current thread, decide what the user does. " +
	"Reply strictly with a single JSON object."

const sentimentSystemPrompt = "Rate the sentiment of the user's text on a scale " +
	"from -1 (very negative) to 1 (very positive). Reply with a single number only."

const stanceSystemPrompt = "Classify the stance expressed by the user's text " +
	"towards the discussed topic. Reply with exactly one word: support, oppose, or neutral."

// maxPromptComments bounds how much thread context is rendered.
const maxPromptComments = 5

func buildDecisionPrompt(p domain.UserProfile, memory []agent.Observation, stim agent.Stimulus) string {
	var b strings.Builder

	b.WriteString("User profile:\n")
	fmt.Fprintf(&b, "- age: %d\n- gender: %s\n- occupation: %s\n", p.Age, p.Gender, p.Occupation)
	fmt.Fprintf(&b, "- activity level: %.2f\n- social influence: %.2f\n", p.ActivityLevel, p.SocialInfluence)
	fmt.Fprintf(&b, "- stance: %s\n- emotion: %s\n- intent: %s\n", p.Stance, p.Emotion, p.Intent)
	if len(p.Interests) > 0 {
		fmt.Fprintf(&b, "- interests: %s\n", strings.Join(p.Interests, ", "))
	}

	if len(memory) > 0 {
		b.WriteString("\nYour recent interactions, oldest first:\n")
		for _, o := range memory {
			fmt.Fprintf(&b, "- round %d: %s on %s", o.Round, o.Kind, o.TargetID)
			if o.Content != "" {
				fmt.Fprintf(&b, " (%q)", o.Content)
			}
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nCurrent thread:\n")
	fmt.Fprintf(&b, "Post %s: %q by %s (likes: %d)\n", stim.Post.ID, stim.Post.Content, stim.Post.Author, stim.PostLikes)
	if len(stim.RecentComments) == 0 {
		b.WriteString("No comments yet.\n")
	} else {
		comments := stim.RecentComments
		if len(comments) > maxPromptComments {
			comments = comments[len(comments)-maxPromptComments:]
		}
		for i, c := range comments {
			fmt.Fprintf(&b, "%d. [%s] %q\n", i+1, c.ID, c.Content)
		}
	}

	b.WriteString(`
Decide whether this user acts and how. Lower activity levels make
inaction more likely; likes are more common than comments or replies.

Available actions:
- like_post, share_post, forward_post (target the post id)
- comment_post (target the post id, include "content")
- like_comment (target a comment id)
- reply_comment (target a comment id, include "content")
- no_action

Reply with JSON:
{"action": "...", "target_id": "...", "content": "...", "reasoning": "..."}
`)
	return b.String()
}
