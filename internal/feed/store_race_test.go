package feed

import (
	"fmt"
	"sync"
	"testing"

	"github.com/echolabs/echosim/internal/domain"
)

// Run with -race. Concurrent mutations against the same post must all
// succeed, yield distinct ids, and never corrupt parent/child links.
func TestStore_ConcurrentAddComment(t *testing.T) {
	s := New()
	post := s.CreatePost("t", "content", "author", 0)

	const writers = 50
	var wg sync.WaitGroup
	ids := make(chan string, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c, err := s.AddComment(post.ID, fmt.Sprintf("u%02d", n), "text", 0, 1)
			if err != nil {
				t.Errorf("AddComment failed: %v", err)
				return
			}
			ids <- c.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("Duplicate comment id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != writers {
		t.Fatalf("Expected %d comments, got %d", writers, len(seen))
	}

	comments, err := s.CommentsOf(post.ID)
	if err != nil {
		t.Fatalf("CommentsOf failed: %v", err)
	}
	if len(comments) != writers {
		t.Errorf("Expected %d stored comments, got %d", writers, len(comments))
	}
	for _, c := range comments {
		if c.PostID != post.ID {
			t.Errorf("Comment %s has corrupted parent link %s", c.ID, c.PostID)
		}
	}
}

func TestStore_ConcurrentApplyAndSnapshot(t *testing.T) {
	s := New()
	post := s.CreatePost("t", "content", "author", 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			a := domain.Action{
				UserID:   fmt.Sprintf("u%02d", n),
				Type:     domain.ActionComment,
				TargetID: post.ID,
				Content:  "c",
				Round:    1,
			}
			if _, err := s.Apply(a, 0.1); err != nil {
				t.Errorf("Apply failed: %v", err)
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	if len(snap.Comments) != 20 || len(snap.Actions) != 20 {
		t.Errorf("Expected 20 comments and actions, got %d/%d", len(snap.Comments), len(snap.Actions))
	}
}
