// Package auth は認証・認可機能を提供します。
package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// TokenTTL はトークンの有効期間です。鍵のローテーション機構は無く、
// 秘密鍵を変更すると発行済みの全トークンが無効になります。
const TokenTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidToken は署名不一致や形式不正のトークンを表します。
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired は有効期限切れのトークンを表します。
	ErrTokenExpired = errors.New("token expired")
)

// Claims はトークンに埋め込むクレームです。ペイロードはユーザーIDのみです。
type Claims struct {
	UserID uint `json:"id"`
	jwt.RegisteredClaims
}

// TokenService はユーザーIDを埋め込んだ署名付きトークンの発行と検証を行います。
// 状態を持たず、プロセス起動時に読み込んだ秘密鍵のみに依存します。
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService は TokenService を作成します。
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: TokenTTL}
}

// NewTokenServiceWithTTL は有効期間を指定して TokenService を作成します（テスト用）。
func NewTokenServiceWithTTL(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// Issue はユーザーIDを埋め込んだトークンを発行します。
func (s *TokenService) Issue(userID uint) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify はトークンを検証し、埋め込まれたユーザーIDを返します。
// 署名不一致は ErrInvalidToken、期限切れは ErrTokenExpired を返します。
func (s *TokenService) Verify(tokenStr string) (uint, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}
