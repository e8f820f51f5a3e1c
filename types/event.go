package types

import "time"

// PostEventType names a mutation applied to a post.
type PostEventType string

const (
	PostCreated PostEventType = "post.created"
	PostUpdated PostEventType = "post.updated"
	PostDeleted PostEventType = "post.deleted"
)

// PostEvent is published after a post mutation has been committed.
type PostEvent struct {
	Type PostEventType `json:"type"`

	PostID   int    `json:"post_id"`
	AuthorID int    `json:"author_id"`
	Title    string `json:"title"`

	// ActorID is the user who performed the mutation. It differs from
	// AuthorID when staff edit or delete someone else's post.
	ActorID int `json:"actor_id"`

	OccurredAt time.Time `json:"occurred_at"`
}
