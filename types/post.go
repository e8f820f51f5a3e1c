package types

import "time"

// Post represents a blog post written by a single user.
// The pair (Title, AuthorID) is unique across all posts.
type Post struct {
	// ID is the unique identifier of the post.
	ID int `json:"id" db:"id"`

	// Title is the headline of the post.
	Title string `json:"title" db:"title"`

	// Content is the body text of the post.
	Content string `json:"content" db:"content"`

	// AuthorID references the user who created the post.
	AuthorID int `json:"author_id" db:"author_id"`

	// AuthorUsername is the author's username, resolved on read.
	AuthorUsername string `json:"author" db:"author_username"`

	// CreatedAt is the timestamp at which the post was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is refreshed on every mutation of the post.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
