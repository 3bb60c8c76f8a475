package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/kumi-board/internal/model"
	"github.com/yourusername/kumi-board/internal/store"
)

// bcryptCost はパスワードハッシュのコストファクターです。
const bcryptCost = 10

type loginForm struct {
	Email    string `form:"email" binding:"required,email"`
	Password string `form:"password" binding:"required,min=6"`
}

type registerForm struct {
	Name     string `form:"name" binding:"required"`
	Email    string `form:"email" binding:"required,email"`
	Address  string `form:"address"`
	Password string `form:"password" binding:"required,min=6"`
}

// ShowLogin は GET /auth/login のハンドラーです。
func (m *Manager) ShowLogin(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", nil)
}

// ShowRegister は GET /auth/register のハンドラーです。
func (m *Manager) ShowRegister(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", nil)
}

// Login は POST /auth/login のハンドラーです。
// 存在しないメールアドレスとパスワード不一致は区別せず、どちらも
// ログインフォームを再表示します（ユーザー列挙を避けるため）。
func (m *Manager) Login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	user, err := m.users.UserByEmail(c.Request.Context(), form.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.HTML(http.StatusOK, "login.html", nil)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(form.Password)) != nil {
		c.HTML(http.StatusOK, "login.html", nil)
		return
	}

	token, err := m.tokens.Issue(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.SetCookie(CookieName, token, int(TokenTTL.Seconds()), "/", "", false, true)
	c.Redirect(http.StatusFound, "/")
}

// Register は POST /auth/register のハンドラーです。
// 重複判定は事前チェックではなくストア層の一意制約違反のみを根拠とします。
func (m *Manager) Register(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcryptCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user := &model.User{
		Name:         form.Name,
		Email:        form.Email,
		Address:      form.Address,
		Role:         model.RoleMember,
		PasswordHash: string(hash),
	}
	if err := m.users.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			c.HTML(http.StatusOK, "register.html", nil)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	c.Redirect(http.StatusFound, "/auth/login")
}

// Logout は POST /auth/logout のハンドラーです。
// クッキーを削除するだけで、サーバー側の失効リストは持ちません。
// 取得済みのトークンは有効期限までそのまま使えます。
func (m *Manager) Logout(c *gin.Context) {
	c.SetCookie(CookieName, "", -1, "/", "", false, true)
	c.Redirect(http.StatusFound, "/auth/login")
}
