package auth

import "github.com/kedevs/blogapi/types"

// Action is an operation on blog posts subject to authorization.
type Action string

const (
	ActionList   Action = "list"
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Authorize decides whether p may perform action on post. It returns nil to
// allow, ErrUnauthenticated or ErrForbidden to deny.
//
// For update and delete the caller must have resolved that post exists.
// Create ignores post; the new post's author is always p.
func Authorize(action Action, p Principal, post *types.Post) error {
	switch action {
	case ActionList, ActionRead:
		return nil
	case ActionCreate:
		if !p.IsAuthenticated() {
			return ErrUnauthenticated
		}
		return nil
	case ActionUpdate, ActionDelete:
		if !p.IsAuthenticated() {
			return ErrUnauthenticated
		}
		if post == nil {
			return ErrForbidden
		}
		if p.IsStaff || post.AuthorID == p.ID {
			return nil
		}
		return ErrForbidden
	default:
		return ErrForbidden
	}
}
