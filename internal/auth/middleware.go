package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/kumi-board/internal/model"
	"github.com/yourusername/kumi-board/internal/store"
)

const (
	// CookieName はトークンを格納するクッキー名です。
	CookieName = "auth_token"

	// ContextUserKey は、ハンドラー間でログイン済みユーザーを共有するためのキーです。
	ContextUserKey = "auth.user"
)

// UserStore は認証に必要なユーザー操作を提供します。
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UserByID(ctx context.Context, id uint) (*model.User, error)
}

// Manager は認証処理をまとめた構造体です。
type Manager struct {
	tokens *TokenService
	users  UserStore
}

// NewManager は認証マネージャーを作成します。
func NewManager(tokens *TokenService, users UserStore) *Manager {
	return &Manager{tokens: tokens, users: users}
}

// RequireLogin はセッショントークンを検証するミドルウェアを返します。
// クッキーからトークンを取り出し、検証し、ユーザーを読み込んで
// パスワードハッシュを取り除いた上でコンテキストへ格納します。
// いずれかに失敗した場合、リクエストはその時点で終了します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := c.Cookie(CookieName)
		if err != nil || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		userID, err := m.tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		user, err := m.users.UserByID(c.Request.Context(), userID)
		if err != nil {
			// 退会済みアカウントの古いトークンもここに落ちる
			if errors.Is(err, store.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "User not found",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load user",
			})
			return
		}

		c.Set(ContextUserKey, user.Sanitized())
		c.Next()
	}
}

// RequireRole は許可された役割のユーザーのみ通過させるミドルウェアを返します。
// 役割の包含関係は考慮しません（admin を許可していない限り admin も拒否されます）。
func (m *Manager) RequireRole(allowed ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		for _, role := range allowed {
			if user.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Permission denied",
		})
	}
}

// CurrentUser はコンテキストからログイン済みユーザーを取り出します。
func CurrentUser(c *gin.Context) (model.User, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return model.User{}, false
	}
	user, ok := value.(model.User)
	return user, ok
}
