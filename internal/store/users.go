package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yourusername/kumi-board/internal/model"
)

// CreateUser はユーザーを1行挿入します。
// メールアドレスの重複は事前チェックせず、一意制約違反のみを重複の根拠として
// ErrDuplicateEmail に変換します。挿入前の存在確認は同時登録の競合窓を生むため
// 行いません。
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	err := s.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateEmail
	}
	return err
}

// UserByEmail はメールアドレスでユーザーを検索します。
func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserByID はIDでユーザーを検索します。
func (s *Store) UserByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UsersInGroups は指定した組に所属する全ユーザーを返します。
// 回覧板の配布通知の宛先解決に使用します。
func (s *Store) UsersInGroups(ctx context.Context, groupIDs []uint) ([]model.User, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var users []model.User
	err := s.db.WithContext(ctx).
		Where("group_id IN ?", groupIDs).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
