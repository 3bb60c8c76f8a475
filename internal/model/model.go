// Package model は回覧板アプリケーションのデータモデルを定義します。
package model

import "time"

// Role はユーザーの役割を表します。
// 役割は閉じた列挙型であり、文字列比較による判定はこのパッケージ内に閉じます。
type Role string

const (
	RoleAdmin  Role = "admin"  // 管理者
	RoleLeader Role = "leader" // 組長
	RoleMember Role = "member" // 一般会員
)

// Valid は役割が定義済みの値かどうかを返します。
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLeader, RoleMember:
		return true
	default:
		return false
	}
}

// User は会員を表します。PasswordHash はストア層の外に出しません。
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Address      string    `json:"address"`
	Role         Role      `gorm:"not null;default:member" json:"role"`
	GroupID      *uint     `json:"groupId,omitempty"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Sanitized はパスワードハッシュを取り除いたコピーを返します。
// 認証ミドルウェアがコンテキストへ載せる前に必ず呼び出します。
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// Group は回覧板の配布先となる組（町内会の班など）を表します。
type Group struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
}

// Circular は回覧板を表します。
type Circular struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Title     string     `gorm:"not null" json:"title"`
	Content   string     `gorm:"not null" json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatorID uint       `gorm:"not null" json:"creatorId"`
	Creator   *User      `gorm:"foreignKey:CreatorID" json:"-"`
}

// CircularGroup は回覧板と組の中間テーブルです。
// 同一の組へ二重に割り当てても一行しか残りません。
type CircularGroup struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	CircularID uint `gorm:"not null;uniqueIndex:idx_circular_group" json:"circularId"`
	GroupID    uint `gorm:"not null;uniqueIndex:idx_circular_group" json:"groupId"`
}

// ReadStatus は既読状態を表します。
// (user, circular) の組は一意で、二度目以降の既読操作は最初の一行に吸収されます。
type ReadStatus struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_read_status" json:"userId"`
	CircularID uint      `gorm:"not null;uniqueIndex:idx_read_status" json:"circularId"`
	ReadAt     time.Time `json:"readAt"`
}
