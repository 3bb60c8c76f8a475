// Package store はSQLiteデータベースへの永続化レイヤーを提供します。
// 接続ハンドルはグローバル変数ではなく Store として起動時に生成し、
// 各ハンドラーへ明示的に渡します。
package store

import (
	"errors"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/kumi-board/internal/model"
)

var (
	// ErrNotFound は対象レコードが存在しないことを表します。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail は一意制約違反によるメールアドレスの重複を表します。
	ErrDuplicateEmail = errors.New("email already registered")
)

// Store はデータベース接続とスキーマのライフサイクルを管理します。
type Store struct {
	db *gorm.DB
}

// New はデータベースを開き、マイグレーションと初期データ投入を行います。
// 失敗した場合、呼び出し側（main）はプロセスを終了すべきです。
func New(databasePath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{
		// 一意制約違反を gorm.ErrDuplicatedKey として受け取るために必要
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := s.seed(); err != nil {
		return nil, fmt.Errorf("failed to seed database: %w", err)
	}
	return s, nil
}

// NewWithDB は既存の接続から Store を作成します（テスト用）。
func NewWithDB(db *gorm.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close はデータベース接続を閉じます。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&model.User{},
		&model.Group{},
		&model.Circular{},
		&model.CircularGroup{},
		&model.ReadStatus{},
	)
}

// seed は開発用の初期データ（第1組と管理者ユーザー）を投入します。
// 管理者が既に存在する場合は何もしません。
func (s *Store) seed() error {
	var count int64
	if err := s.db.Model(&model.User{}).
		Where("email = ?", "admin@example.com").
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), 10)
	if err != nil {
		return err
	}

	if err := s.db.Create(&model.Group{
		Name:        "第1組",
		Description: "中央地区第1組",
	}).Error; err != nil {
		return err
	}

	if err := s.db.Create(&model.User{
		Name:         "管理者",
		Email:        "admin@example.com",
		Role:         model.RoleAdmin,
		PasswordHash: string(hash),
	}).Error; err != nil {
		return err
	}

	log.Printf("seeded initial group and admin user")
	return nil
}
