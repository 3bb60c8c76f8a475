package store

import (
	"context"

	"github.com/yourusername/kumi-board/internal/model"
)

// CreateGroup は組を作成します。
func (s *Store) CreateGroup(ctx context.Context, group *model.Group) error {
	return s.db.WithContext(ctx).Create(group).Error
}

// Groups は全ての組をID順に返します。
func (s *Store) Groups(ctx context.Context) ([]model.Group, error) {
	var groups []model.Group
	if err := s.db.WithContext(ctx).Order("id").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}
