package domain

import "time"

// Post is the root content item of a simulation session. Immutable
// once created.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Round     int       `json:"round"`
	CreatedAt time.Time `json:"created_at"`
}

// Comment attaches to exactly one post. Sentiment is a derived scalar
// in [-1,1] supplied by the content-analysis port at creation time.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	Sentiment float64   `json:"sentiment"`
	Round     int       `json:"round"`
	CreatedAt time.Time `json:"created_at"`
}

// Reply attaches to exactly one comment. The hierarchy is capped at
// two levels: replies cannot themselves receive replies.
type Reply struct {
	ID        string    `json:"id"`
	CommentID string    `json:"comment_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	Sentiment float64   `json:"sentiment"`
	Round     int       `json:"round"`
	CreatedAt time.Time `json:"created_at"`
}
