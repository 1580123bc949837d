// Package feed implements the interaction store: the hierarchical
// post/comment/reply state and append-only action log of one
// simulation session. The store is the single shared mutable resource
// of a session; all mutations are serialized behind one mutex so that
// concurrent agents can never corrupt parent/child links.
package feed

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/echolabs/echosim/internal/domain"
)

// Store owns all posts, comments, replies, and actions of a session.
type Store struct {
	mu sync.RWMutex

	posts          map[string]*domain.Post
	comments       map[string]*domain.Comment
	replies        map[string]*domain.Reply
	postComments   map[string][]string // post id -> comment ids, creation order
	commentReplies map[string][]string // comment id -> reply ids, creation order

	actions   []domain.Action
	byUser    map[string][]int // user id -> indexes into actions
	lastRound map[string]int   // per-user high-water round mark

	likeUsers map[string]map[string]struct{} // target id -> users who liked it
}

// New creates an empty interaction store.
func New() *Store {
	return &Store{
		posts:          make(map[string]*domain.Post),
		comments:       make(map[string]*domain.Comment),
		replies:        make(map[string]*domain.Reply),
		postComments:   make(map[string][]string),
		commentReplies: make(map[string][]string),
		byUser:         make(map[string][]int),
		lastRound:      make(map[string]int),
		likeUsers:      make(map[string]map[string]struct{}),
	}
}

func newID(kind string) string {
	return kind + "_" + uuid.NewString()[:8]
}

// CreatePost adds a root content item.
func (s *Store) CreatePost(title, content, author string, round int) domain.Post {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := domain.Post{
		ID:        newID("post"),
		Title:     title,
		Content:   content,
		Author:    author,
		Round:     round,
		CreatedAt: time.Now(),
	}
	s.posts[p.ID] = &p
	return p
}

// AddComment attaches a comment to an existing post.
func (s *Store) AddComment(postID, authorID, content string, sentiment float64, round int) (domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCommentLocked(postID, authorID, content, sentiment, round)
}

func (s *Store) addCommentLocked(postID, authorID, content string, sentiment float64, round int) (domain.Comment, error) {
	if _, ok := s.posts[postID]; !ok {
		return domain.Comment{}, fmt.Errorf("add comment to post %s: %w", postID, ErrNotFound)
	}
	c := domain.Comment{
		ID:        newID("comment"),
		PostID:    postID,
		AuthorID:  authorID,
		Content:   content,
		Sentiment: sentiment,
		Round:     round,
		CreatedAt: time.Now(),
	}
	s.comments[c.ID] = &c
	s.postComments[postID] = append(s.postComments[postID], c.ID)
	return c, nil
}

// AddReply attaches a reply to an existing comment. Replying to a
// reply is rejected with ErrInvalidParent: the hierarchy is two-level.
func (s *Store) AddReply(commentID, authorID, content string, sentiment float64, round int) (domain.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addReplyLocked(commentID, authorID, content, sentiment, round)
}

func (s *Store) addReplyLocked(commentID, authorID, content string, sentiment float64, round int) (domain.Reply, error) {
	if _, isReply := s.replies[commentID]; isReply {
		return domain.Reply{}, fmt.Errorf("reply to %s: %w", commentID, ErrInvalidParent)
	}
	if _, ok := s.comments[commentID]; !ok {
		return domain.Reply{}, fmt.Errorf("reply to comment %s: %w", commentID, ErrNotFound)
	}
	r := domain.Reply{
		ID:        newID("reply"),
		CommentID: commentID,
		AuthorID:  authorID,
		Content:   content,
		Sentiment: sentiment,
		Round:     round,
		CreatedAt: time.Now(),
	}
	s.replies[r.ID] = &r
	s.commentReplies[commentID] = append(s.commentReplies[commentID], r.ID)
	return r, nil
}

// RecordAction appends an action fact. The target must exist and the
// round number must be monotonically non-decreasing per user.
func (s *Store) RecordAction(a domain.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActionLocked(a); err != nil {
		return err
	}
	s.recordActionLocked(a)
	return nil
}

func (s *Store) checkActionLocked(a domain.Action) error {
	if last, ok := s.lastRound[a.UserID]; ok && a.Round < last {
		return fmt.Errorf("action round %d for user %s after round %d: %w",
			a.Round, a.UserID, last, ErrConsistency)
	}
	if a.Type == domain.ActionNoOp {
		return nil
	}
	if !s.targetExistsLocked(a.TargetID) {
		return fmt.Errorf("action %s on %s: %w", a.Type, a.TargetID, ErrNotFound)
	}
	return nil
}

func (s *Store) targetExistsLocked(id string) bool {
	if _, ok := s.posts[id]; ok {
		return true
	}
	if _, ok := s.comments[id]; ok {
		return true
	}
	_, ok := s.replies[id]
	return ok
}

func (s *Store) recordActionLocked(a domain.Action) {
	if a.ID == "" {
		a.ID = newID("action")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	idx := len(s.actions)
	s.actions = append(s.actions, a)
	s.byUser[a.UserID] = append(s.byUser[a.UserID], idx)
	s.lastRound[a.UserID] = a.Round

	if a.Type == domain.ActionLike {
		set, ok := s.likeUsers[a.TargetID]
		if !ok {
			set = make(map[string]struct{})
			s.likeUsers[a.TargetID] = set
		}
		set[a.UserID] = struct{}{}
	}
}

// Apply records an action and, for comments and replies, creates the
// corresponding content entity in the same critical section. It
// returns the id of the created entity, if any.
func (s *Store) Apply(a domain.Action, sentiment float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkActionLocked(a); err != nil {
		return "", err
	}

	var createdID string
	switch a.Type {
	case domain.ActionComment:
		c, err := s.addCommentLocked(a.TargetID, a.UserID, a.Content, sentiment, a.Round)
		if err != nil {
			return "", err
		}
		createdID = c.ID
	case domain.ActionReply:
		r, err := s.addReplyLocked(a.TargetID, a.UserID, a.Content, sentiment, a.Round)
		if err != nil {
			return "", err
		}
		createdID = r.ID
	case domain.ActionShare, domain.ActionForward:
		if _, ok := s.posts[a.TargetID]; !ok {
			return "", fmt.Errorf("%s of %s: %w", a.Type, a.TargetID, ErrNotFound)
		}
	case domain.ActionLike, domain.ActionNoOp:
		// Validity already checked.
	}

	s.recordActionLocked(a)
	return createdID, nil
}

// CommentsOf returns the comments of a post in creation order.
func (s *Store) CommentsOf(postID string) ([]domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.posts[postID]; !ok {
		return nil, fmt.Errorf("comments of %s: %w", postID, ErrNotFound)
	}
	ids := s.postComments[postID]
	out := make([]domain.Comment, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.comments[id])
	}
	return out, nil
}

// RepliesOf returns the replies of a comment in creation order.
func (s *Store) RepliesOf(commentID string) ([]domain.Reply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.comments[commentID]; !ok {
		return nil, fmt.Errorf("replies of %s: %w", commentID, ErrNotFound)
	}
	ids := s.commentReplies[commentID]
	out := make([]domain.Reply, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.replies[id])
	}
	return out, nil
}

// ActionsOf returns every action recorded for a user, oldest first.
func (s *Store) ActionsOf(userID string) []domain.Action {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idxs := s.byUser[userID]
	out := make([]domain.Action, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.actions[i])
	}
	return out
}

// Likes returns the number of distinct users who liked the target.
func (s *Store) Likes(targetID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.likeUsers[targetID])
}
