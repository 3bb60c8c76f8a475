// Package circular は回覧板の閲覧・作成・既読管理のハンドラーを提供します。
package circular

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/kumi-board/internal/auth"
	"github.com/yourusername/kumi-board/internal/model"
	"github.com/yourusername/kumi-board/internal/store"
)

// Store は回覧板ハンドラーが必要とする永続化操作です。
type Store interface {
	CreateCircular(ctx context.Context, circular *model.Circular, groupIDs []uint) error
	CircularByID(ctx context.Context, id uint) (*model.Circular, error)
	CircularsForUser(ctx context.Context, user *model.User) ([]store.CircularWithReadFlag, error)
	MarkRead(ctx context.Context, userID, circularID uint) error
	CreateGroup(ctx context.Context, group *model.Group) error
	Groups(ctx context.Context) ([]model.Group, error)
}

// Notifier は回覧板の配布通知ジョブを投入するためのインターフェースです。
// ワーカー未構成時は nil を渡します。
type Notifier interface {
	NotifyCircular(ctx context.Context, circularID uint) (string, error)
}

// Handler は回覧板関連のHTTPハンドラーをまとめた構造体です。
type Handler struct {
	store    Store
	notifier Notifier
}

// NewHandler は Handler を作成します。notifier は nil でも構いません。
func NewHandler(s Store, notifier Notifier) *Handler {
	return &Handler{store: s, notifier: notifier}
}

type createForm struct {
	Title     string `form:"title" binding:"required"`
	Content   string `form:"content" binding:"required"`
	ExpiresAt string `form:"expires_at"`
	GroupIDs  []uint `form:"group_ids" binding:"required,min=1"`
}

type createGroupForm struct {
	Name        string `form:"name" binding:"required"`
	Description string `form:"description"`
}

// Home は GET / のハンドラーです。ログイン済みユーザーの名前と、
// 所属組へ配布された回覧板の一覧を表示します。
func (h *Handler) Home(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	circulars, err := h.store.CircularsForUser(c.Request.Context(), &user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load circulars"})
		return
	}

	c.HTML(http.StatusOK, "home.html", gin.H{
		"User":      user,
		"Circulars": circulars,
	})
}

// Show は GET /circulars/:id のハンドラーです。
func (h *Handler) Show(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid circular id"})
		return
	}

	circular, err := h.store.CircularByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Circular not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load circular"})
		return
	}

	circulars, err := h.store.CircularsForUser(c.Request.Context(), &user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load circulars"})
		return
	}
	read := false
	for _, entry := range circulars {
		if entry.ID == circular.ID {
			read = entry.Read
			break
		}
	}

	c.HTML(http.StatusOK, "circular.html", gin.H{
		"User":     user,
		"Circular": circular,
		"Read":     read,
	})
}

// MarkRead は POST /circulars/:id/read のハンドラーです。
// 既読の記録は冪等で、二度押しされても既読日時は最初のまま変わりません。
func (h *Handler) MarkRead(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid circular id"})
		return
	}

	if _, err := h.store.CircularByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Circular not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load circular"})
		return
	}

	if err := h.store.MarkRead(c.Request.Context(), user.ID, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record read status"})
		return
	}

	c.Redirect(http.StatusFound, fmt.Sprintf("/circulars/%d", id))
}

// Create は POST /circulars のハンドラーです。admin/leader のみが
// ロールガード越しに到達します。作成後に配布通知ジョブを投入します。
func (h *Handler) Create(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var form createForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	var expiresAt *time.Time
	if form.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, form.ExpiresAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expires_at"})
			return
		}
		expiresAt = &t
	}

	circular := &model.Circular{
		Title:     form.Title,
		Content:   form.Content,
		ExpiresAt: expiresAt,
		CreatorID: user.ID,
	}
	if err := h.store.CreateCircular(c.Request.Context(), circular, form.GroupIDs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create circular"})
		return
	}

	if h.notifier != nil {
		if _, err := h.notifier.NotifyCircular(c.Request.Context(), circular.ID); err != nil {
			// 通知は配布の付随機能なので、失敗しても回覧板の作成自体は成功扱い
			_ = c.Error(err)
		}
	}

	c.Redirect(http.StatusFound, "/")
}

// ListGroups は GET /groups のハンドラーです。
func (h *Handler) ListGroups(c *gin.Context) {
	groups, err := h.store.Groups(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// CreateGroup は POST /groups のハンドラーです。admin のみが到達します。
func (h *Handler) CreateGroup(c *gin.Context) {
	var form createGroupForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	group := &model.Group{Name: form.Name, Description: form.Description}
	if err := h.store.CreateGroup(c.Request.Context(), group); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"group": group})
}

func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
