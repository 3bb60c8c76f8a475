package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/kumi-board/internal/model"
)

// CircularWithReadFlag は一覧表示用に既読フラグを付けた回覧板です。
type CircularWithReadFlag struct {
	model.Circular
	Read bool `json:"read"`
}

// CreateCircular は回覧板と配布先の組リンクを単一トランザクションで作成します。
// 同じ組を重複指定しても一意制約によりリンクは一行に畳まれます。
func (s *Store) CreateCircular(ctx context.Context, circular *model.Circular, groupIDs []uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(circular).Error; err != nil {
			return err
		}
		for _, gid := range groupIDs {
			link := model.CircularGroup{CircularID: circular.ID, GroupID: gid}
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
			if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
				return err
			}
		}
		return nil
	})
}

// CircularByID は回覧板をIDで取得します。
func (s *Store) CircularByID(ctx context.Context, id uint) (*model.Circular, error) {
	var circular model.Circular
	err := s.db.WithContext(ctx).First(&circular, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &circular, nil
}

// CircularsForUser はユーザーの所属組へ配布された有効期限内の回覧板を
// 新しい順に返します。組に未所属のユーザーには空のリストを返します。
func (s *Store) CircularsForUser(ctx context.Context, user *model.User) ([]CircularWithReadFlag, error) {
	if user.GroupID == nil {
		return nil, nil
	}

	var circulars []model.Circular
	now := time.Now()
	err := s.db.WithContext(ctx).
		Joins("JOIN circular_groups ON circular_groups.circular_id = circulars.id").
		Where("circular_groups.group_id = ?", *user.GroupID).
		Where("circulars.expires_at IS NULL OR circulars.expires_at > ?", now).
		Order("circulars.created_at DESC").
		Find(&circulars).Error
	if err != nil {
		return nil, err
	}

	result := make([]CircularWithReadFlag, 0, len(circulars))
	for _, c := range circulars {
		read, err := s.hasRead(ctx, user.ID, c.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, CircularWithReadFlag{Circular: c, Read: read})
	}
	return result, nil
}

// MarkRead は既読状態を記録します。同じ (user, circular) の組に対しては
// 最初の一行のみを保持し、二度目以降の呼び出しは何も変更しません。
func (s *Store) MarkRead(ctx context.Context, userID, circularID uint) error {
	status := model.ReadStatus{
		UserID:     userID,
		CircularID: circularID,
		ReadAt:     time.Now(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&status).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

func (s *Store) hasRead(ctx context.Context, userID, circularID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ReadStatus{}).
		Where("user_id = ? AND circular_id = ?", userID, circularID).
		Count(&count).Error
	return count > 0, err
}

// GroupIDsForCircular は回覧板の配布先の組IDを返します。
func (s *Store) GroupIDsForCircular(ctx context.Context, circularID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&model.CircularGroup{}).
		Where("circular_id = ?", circularID).
		Pluck("group_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// PurgeExpiredCirculars は有効期限を過ぎた回覧板を、組リンクおよび既読行と
// 合わせて削除します。削除した回覧板の件数を返します。
func (s *Store) PurgeExpiredCirculars(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&model.Circular{}).
			Where("expires_at IS NOT NULL AND expires_at <= ?", now).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("circular_id IN ?", ids).Delete(&model.CircularGroup{}).Error; err != nil {
			return err
		}
		if err := tx.Where("circular_id IN ?", ids).Delete(&model.ReadStatus{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Circular{}, ids)
		if res.Error != nil {
			return res.Error
		}
		purged = res.RowsAffected
		return nil
	})
	return purged, err
}
