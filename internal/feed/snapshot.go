package feed

import (
	"sort"

	"github.com/echolabs/echosim/internal/domain"
)

// Snapshot is a consistent point-in-time copy of the store, safe to
// read while the next round mutates the live store. Slices are sorted
// by (round, id) so two snapshots of identical store content compare
// structurally equal regardless of write interleaving.
type Snapshot struct {
	Posts    []domain.Post   `json:"posts"`
	Comments []domain.Comment `json:"comments"`
	Replies  []domain.Reply  `json:"replies"`
	Actions  []domain.Action `json:"actions"`
	Likes    map[string]int  `json:"likes"`
}

// Snapshot copies the current store state under the read lock.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Posts:    make([]domain.Post, 0, len(s.posts)),
		Comments: make([]domain.Comment, 0, len(s.comments)),
		Replies:  make([]domain.Reply, 0, len(s.replies)),
		Actions:  make([]domain.Action, len(s.actions)),
		Likes:    make(map[string]int, len(s.likeUsers)),
	}
	for _, p := range s.posts {
		snap.Posts = append(snap.Posts, *p)
	}
	for _, c := range s.comments {
		snap.Comments = append(snap.Comments, *c)
	}
	for _, r := range s.replies {
		snap.Replies = append(snap.Replies, *r)
	}
	copy(snap.Actions, s.actions)
	for target, users := range s.likeUsers {
		snap.Likes[target] = len(users)
	}

	sort.Slice(snap.Posts, func(i, j int) bool { return snap.Posts[i].ID < snap.Posts[j].ID })
	sort.Slice(snap.Comments, func(i, j int) bool {
		a, b := snap.Comments[i], snap.Comments[j]
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		return a.ID < b.ID
	})
	sort.Slice(snap.Replies, func(i, j int) bool {
		a, b := snap.Replies[i], snap.Replies[j]
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		return a.ID < b.ID
	})
	sort.Slice(snap.Actions, func(i, j int) bool {
		a, b := snap.Actions[i], snap.Actions[j]
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.ID < b.ID
	})
	return snap
}

// CommentsOf returns the snapshot's comments for a post.
func (sn *Snapshot) CommentsOf(postID string) []domain.Comment {
	var out []domain.Comment
	for _, c := range sn.Comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	return out
}

// RepliesOf returns the snapshot's replies for a comment.
func (sn *Snapshot) RepliesOf(commentID string) []domain.Reply {
	var out []domain.Reply
	for _, r := range sn.Replies {
		if r.CommentID == commentID {
			out = append(out, r)
		}
	}
	return out
}

// ActionsInRound returns all actions recorded in the given round.
func (sn *Snapshot) ActionsInRound(round int) []domain.Action {
	var out []domain.Action
	for _, a := range sn.Actions {
		if a.Round == round {
			out = append(out, a)
		}
	}
	return out
}

// ActorsInRound returns the distinct users that produced at least one
// non-noop action in the given round.
func (sn *Snapshot) ActorsInRound(round int) map[string]struct{} {
	out := make(map[string]struct{})
	for _, a := range sn.Actions {
		if a.Round == round && a.Type != domain.ActionNoOp {
			out[a.UserID] = struct{}{}
		}
	}
	return out
}

// RecentComments returns up to n of the newest comments across all
// posts, oldest of the selection first. Used to build agent stimuli.
func (sn *Snapshot) RecentComments(n int) []domain.Comment {
	if n <= 0 || len(sn.Comments) == 0 {
		return nil
	}
	start := len(sn.Comments) - n
	if start < 0 {
		start = 0
	}
	out := make([]domain.Comment, len(sn.Comments)-start)
	copy(out, sn.Comments[start:])
	return out
}
