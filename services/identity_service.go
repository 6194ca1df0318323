// Package services, iş mantığı katmanını barındırır.
//
// Her service bir public interface + private struct + NewX constructor
// üçlüsüyle tanımlanır. Handler'lar ve ws katmanı sadece interface'i görür.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/akinalp/opti/models"
	"github.com/akinalp/opti/pkg"
	"github.com/akinalp/opti/pkg/cache"
	"github.com/akinalp/opti/repository"
)

// tokenIssuer, bu servisin ürettiği token'ların "iss" claim'i.
const tokenIssuer = "opti"

// IdentityService, bağlantı kimliği ve karşı taraf geçerliliği.
//
//   - ValidateAccessToken: JWT imza + süre kontrolü, claims döner
//   - Resolve: token → kullanıcı kimliği; kullanıcı yoksa veya engelliyse reddeder
//   - IsValidCounterparty: kullanıcı var mı ve engelli değil mi (TTL cache'li)
//   - IssueToken: geliştirme/CLI için token üretir
//   - CreateUser / SetBlocked: seed ve yönetim işlemleri, cache'i günceller
type IdentityService interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
	Resolve(ctx context.Context, tokenString string) (string, error)
	IsValidCounterparty(ctx context.Context, userID string) (bool, error)
	IssueToken(userID string) (string, error)
	CreateUser(ctx context.Context, nickname string) (*models.User, error)
	SetBlocked(ctx context.Context, userID string, blocked bool) error
	Invalidate(userID string)
	Close()
}

type identityService struct {
	userRepo  repository.UserRepository
	validity  *cache.TTLCache[string, bool]
	jwtSecret []byte
	expiry    time.Duration
	log       *zap.Logger
}

// NewIdentityService, constructor.
// cacheTTL, IsValidCounterparty sonucunun ne kadar süre tekrar kullanılacağıdır.
func NewIdentityService(
	userRepo repository.UserRepository,
	jwtSecret string,
	expiry time.Duration,
	cacheTTL time.Duration,
	log *zap.Logger,
) IdentityService {
	return &identityService{
		userRepo:  userRepo,
		validity:  cache.New[string, bool](cacheTTL, cacheTTL*2),
		jwtSecret: []byte(jwtSecret),
		expiry:    expiry,
		log:       log,
	}
}

// ValidateAccessToken, JWT'yi doğrular ve claims'i döner.
// Sadece HMAC imzalar kabul edilir; "alg: none" ve asimetrik algoritmalar reddedilir.
func (s *identityService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", pkg.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", pkg.ErrUnauthorized)
	}
	if models.ValidateUserID(claims.UserID()) != nil {
		return nil, fmt.Errorf("%w: invalid subject", pkg.ErrUnauthorized)
	}

	return claims, nil
}

func (s *identityService) Resolve(ctx context.Context, tokenString string) (string, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", fmt.Errorf("%w: missing token", pkg.ErrUnauthorized)
	}

	claims, err := s.ValidateAccessToken(tokenString)
	if err != nil {
		return "", err
	}

	userID := claims.UserID()
	ok, err := s.IsValidCounterparty(ctx, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: unknown or blocked user", pkg.ErrUnauthorized)
	}
	return userID, nil
}

// IsValidCounterparty, kullanıcının var olduğunu ve engelli olmadığını kontrol eder.
// Sonuç (true da false da) cacheTTL boyunca tutulur; DB hatası cache'lenmez.
func (s *identityService) IsValidCounterparty(ctx context.Context, userID string) (bool, error) {
	if models.ValidateUserID(userID) != nil {
		return false, nil
	}

	return s.validity.GetOrLoad(userID, func() (bool, error) {
		user, err := s.userRepo.GetByID(ctx, userID)
		if errors.Is(err, pkg.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to check user: %w", err)
		}
		return !user.IsBlocked, nil
	})
}

func (s *identityService) IssueToken(userID string) (string, error) {
	if err := models.ValidateUserID(userID); err != nil {
		return "", fmt.Errorf("%w: user id %v", pkg.ErrBadRequest, err)
	}

	now := time.Now()
	claims := &models.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *identityService) CreateUser(ctx context.Context, nickname string) (*models.User, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, fmt.Errorf("%w: nickname is required", pkg.ErrBadRequest)
	}

	user := &models.User{Nickname: nickname}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	// Daha önce "yok" olarak cache'lenmiş olabilir
	s.Invalidate(user.ID)
	s.log.Info("user created", zap.String("user_id", user.ID), zap.String("nickname", nickname))
	return user, nil
}

func (s *identityService) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	if err := s.userRepo.SetBlocked(ctx, userID, blocked); err != nil {
		return err
	}
	s.Invalidate(userID)
	s.log.Info("user block state changed", zap.String("user_id", userID), zap.Bool("blocked", blocked))
	return nil
}

// Invalidate, kullanıcının cache'lenmiş geçerlilik sonucunu siler.
func (s *identityService) Invalidate(userID string) {
	s.validity.Delete(userID)
}

func (s *identityService) Close() {
	s.validity.Close()
}
