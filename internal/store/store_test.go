package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/kumi-board/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	// テスト毎に独立したインメモリDBを使用する
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	// インメモリSQLiteは単一接続に絞って直列化する
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	s, err := NewWithDB(db)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreateUser(t *testing.T, s *Store, name, email string, groupID *uint) *model.User {
	t.Helper()
	user := &model.User{
		Name:         name,
		Email:        email,
		Role:         model.RoleMember,
		GroupID:      groupID,
		PasswordHash: "hash",
	}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser(%s) returned error: %v", email, err)
	}
	return user
}

func mustCreateGroup(t *testing.T, s *Store, name string) *model.Group {
	t.Helper()
	group := &model.Group{Name: name}
	if err := s.CreateGroup(context.Background(), group); err != nil {
		t.Fatalf("CreateGroup(%s) returned error: %v", name, err)
	}
	return group
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "Taro", "taro@example.com", nil)

	err := s.CreateUser(ctx, &model.User{
		Name:         "Imposter",
		Email:        "taro@example.com",
		Role:         model.RoleMember,
		PasswordHash: "other",
	})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("CreateUser(duplicate) = %v, want ErrDuplicateEmail", err)
	}
}

func TestCreateUserConcurrentDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.CreateUser(ctx, &model.User{
				Name:         "Taro",
				Email:        "taro@example.com",
				Role:         model.RoleMember,
				PasswordHash: "hash",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrDuplicateEmail) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("succeeded = %d, want exactly 1", succeeded)
	}

	// 重複した行が存在しないこと
	if _, err := s.UserByEmail(ctx, "taro@example.com"); err != nil {
		t.Fatalf("UserByEmail returned error: %v", err)
	}
}

func TestUserLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := mustCreateUser(t, s, "Taro", "taro@example.com", nil)

	byEmail, err := s.UserByEmail(ctx, "taro@example.com")
	if err != nil {
		t.Fatalf("UserByEmail returned error: %v", err)
	}
	if byEmail.ID != created.ID {
		t.Fatalf("byEmail.ID = %d, want %d", byEmail.ID, created.ID)
	}

	byID, err := s.UserByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("UserByID returned error: %v", err)
	}
	if byID.Email != "taro@example.com" {
		t.Fatalf("byID.Email = %q", byID.Email)
	}

	if _, err := s.UserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UserByEmail(missing) = %v, want ErrNotFound", err)
	}
	if _, err := s.UserByID(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UserByID(missing) = %v, want ErrNotFound", err)
	}
}

func TestCircularsForUserByGroup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	group1 := mustCreateGroup(t, s, "第1組")
	group2 := mustCreateGroup(t, s, "第2組")
	creator := mustCreateUser(t, s, "管理者", "admin@example.com", nil)
	member := mustCreateUser(t, s, "Taro", "taro@example.com", &group1.ID)
	outsider := mustCreateUser(t, s, "Jiro", "jiro@example.com", &group2.ID)
	nomad := mustCreateUser(t, s, "Saburo", "saburo@example.com", nil)

	circular := &model.Circular{Title: "ゴミ収集日変更", Content: "来週から変わります", CreatorID: creator.ID}
	if err := s.CreateCircular(ctx, circular, []uint{group1.ID}); err != nil {
		t.Fatalf("CreateCircular returned error: %v", err)
	}

	got, err := s.CircularsForUser(ctx, member)
	if err != nil {
		t.Fatalf("CircularsForUser returned error: %v", err)
	}
	if len(got) != 1 || got[0].Title != "ゴミ収集日変更" {
		t.Fatalf("unexpected circulars: %#v", got)
	}
	if got[0].Read {
		t.Fatal("expected unread circular")
	}

	// 別の組のユーザーには配布されない
	got, err = s.CircularsForUser(ctx, outsider)
	if err != nil {
		t.Fatalf("CircularsForUser returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("outsider must not see the circular: %#v", got)
	}

	// 組に未所属のユーザーは空のリスト
	got, err = s.CircularsForUser(ctx, nomad)
	if err != nil {
		t.Fatalf("CircularsForUser returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("nomad must see no circulars: %#v", got)
	}
}

func TestCircularsForUserSkipsExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	group := mustCreateGroup(t, s, "第1組")
	creator := mustCreateUser(t, s, "管理者", "admin@example.com", nil)
	member := mustCreateUser(t, s, "Taro", "taro@example.com", &group.ID)

	past := time.Now().Add(-time.Hour)
	expired := &model.Circular{Title: "古いお知らせ", Content: "終了", ExpiresAt: &past, CreatorID: creator.ID}
	if err := s.CreateCircular(ctx, expired, []uint{group.ID}); err != nil {
		t.Fatalf("CreateCircular returned error: %v", err)
	}

	got, err := s.CircularsForUser(ctx, member)
	if err != nil {
		t.Fatalf("CircularsForUser returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expired circular must be hidden: %#v", got)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	group := mustCreateGroup(t, s, "第1組")
	creator := mustCreateUser(t, s, "管理者", "admin@example.com", nil)
	member := mustCreateUser(t, s, "Taro", "taro@example.com", &group.ID)

	circular := &model.Circular{Title: "お知らせ", Content: "本文", CreatorID: creator.ID}
	if err := s.CreateCircular(ctx, circular, []uint{group.ID}); err != nil {
		t.Fatalf("CreateCircular returned error: %v", err)
	}

	if err := s.MarkRead(ctx, member.ID, circular.ID); err != nil {
		t.Fatalf("MarkRead returned error: %v", err)
	}
	// 二度目の既読操作はエラーにならず、行も増えない
	if err := s.MarkRead(ctx, member.ID, circular.ID); err != nil {
		t.Fatalf("second MarkRead returned error: %v", err)
	}

	var count int64
	if err := s.db.Model(&model.ReadStatus{}).
		Where("user_id = ? AND circular_id = ?", member.ID, circular.ID).
		Count(&count).Error; err != nil {
		t.Fatalf("count returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("read status rows = %d, want 1", count)
	}

	got, err := s.CircularsForUser(ctx, member)
	if err != nil {
		t.Fatalf("CircularsForUser returned error: %v", err)
	}
	if len(got) != 1 || !got[0].Read {
		t.Fatalf("expected read flag set: %#v", got)
	}
}

func TestCreateCircularDeduplicatesGroupLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	group := mustCreateGroup(t, s, "第1組")
	creator := mustCreateUser(t, s, "管理者", "admin@example.com", nil)

	circular := &model.Circular{Title: "お知らせ", Content: "本文", CreatorID: creator.ID}
	if err := s.CreateCircular(ctx, circular, []uint{group.ID, group.ID}); err != nil {
		t.Fatalf("CreateCircular returned error: %v", err)
	}

	ids, err := s.GroupIDsForCircular(ctx, circular.ID)
	if err != nil {
		t.Fatalf("GroupIDsForCircular returned error: %v", err)
	}
	if len(ids) != 1 || ids[0] != group.ID {
		t.Fatalf("unexpected group links: %#v", ids)
	}
}

func TestPurgeExpiredCirculars(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	group := mustCreateGroup(t, s, "第1組")
	creator := mustCreateUser(t, s, "管理者", "admin@example.com", nil)
	member := mustCreateUser(t, s, "Taro", "taro@example.com", &group.ID)

	past := time.Now().Add(-time.Hour)
	expired := &model.Circular{Title: "期限切れ", Content: "本文", ExpiresAt: &past, CreatorID: creator.ID}
	if err := s.CreateCircular(ctx, expired, []uint{group.ID}); err != nil {
		t.Fatalf("CreateCircular returned error: %v", err)
	}
	if err := s.MarkRead(ctx, member.ID, expired.ID); err != nil {
		t.Fatalf("MarkRead returned error: %v", err)
	}

	active := &model.Circular{Title: "有効", Content: "本文", CreatorID: creator.ID}
	if err := s.CreateCircular(ctx, active, []uint{group.ID}); err != nil {
		t.Fatalf("CreateCircular returned error: %v", err)
	}

	purged, err := s.PurgeExpiredCirculars(ctx, time.Now())
	if err != nil {
		t.Fatalf("PurgeExpiredCirculars returned error: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}

	if _, err := s.CircularByID(ctx, expired.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired circular still present: %v", err)
	}
	if _, err := s.CircularByID(ctx, active.ID); err != nil {
		t.Fatalf("active circular must remain: %v", err)
	}

	// 既読行とリンクも掃除されている
	var readRows int64
	if err := s.db.Model(&model.ReadStatus{}).Where("circular_id = ?", expired.ID).Count(&readRows).Error; err != nil {
		t.Fatalf("count returned error: %v", err)
	}
	if readRows != 0 {
		t.Fatalf("read rows = %d, want 0", readRows)
	}
	links, err := s.GroupIDsForCircular(ctx, expired.ID)
	if err != nil {
		t.Fatalf("GroupIDsForCircular returned error: %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("links = %#v, want none", links)
	}
}

func TestUsersInGroups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	group1 := mustCreateGroup(t, s, "第1組")
	group2 := mustCreateGroup(t, s, "第2組")
	mustCreateUser(t, s, "Taro", "taro@example.com", &group1.ID)
	mustCreateUser(t, s, "Jiro", "jiro@example.com", &group2.ID)
	mustCreateUser(t, s, "Saburo", "saburo@example.com", nil)

	users, err := s.UsersInGroups(ctx, []uint{group1.ID, group2.ID})
	if err != nil {
		t.Fatalf("UsersInGroups returned error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("users = %d, want 2", len(users))
	}

	users, err = s.UsersInGroups(ctx, nil)
	if err != nil {
		t.Fatalf("UsersInGroups(nil) returned error: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected no users for empty group list: %#v", users)
	}
}
