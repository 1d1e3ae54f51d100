package repository

import (
	"context"
	"errors"

	"github.com/quillchat/quill/internal/domain"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
)

// UserRepository defines the interface for user persistence.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
}

// MessageRepository defines the interface for message persistence.
// Messages are append-only; editing and deletion are out of scope.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	// History returns all messages exchanged between two users ordered by
	// creation time ascending.
	History(ctx context.Context, userA, userB string) ([]*domain.Message, error)
}
