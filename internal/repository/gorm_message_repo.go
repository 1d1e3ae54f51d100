package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/quillchat/quill/internal/domain"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create persists a message record. The caller assigns ID and CreatedAt.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	model := domain.MessageToModel(msg)
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return result.Error
	}

	msg.CreatedAt = model.CreatedAt
	return nil
}

// History returns the conversation between two users, oldest first.
func (r *GormMessageRepository) History(ctx context.Context, userA, userB string) ([]*domain.Message, error) {
	pair := []string{userA, userB}

	var models []domain.MessageModel
	result := r.db.WithContext(ctx).
		Where("sender IN ? AND recipient IN ?", pair, pair).
		Order("created_at ASC").
		Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}

	messages := make([]*domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, models[i].ToDomain())
	}
	return messages, nil
}
