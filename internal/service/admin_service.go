package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/quocanhngo/managex/internal/repository"
	"github.com/quocanhngo/managex/pkg/auth"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AdminService handles administrator authentication
type AdminService struct {
	admins     *repository.AdminRepository
	jwtManager *auth.JWTManager
	revoker    auth.Revoker
	log        zerolog.Logger
}

func NewAdminService(admins *repository.AdminRepository, jwtManager *auth.JWTManager, revoker auth.Revoker, log zerolog.Logger) *AdminService {
	return &AdminService{
		admins:     admins,
		jwtManager: jwtManager,
		revoker:    revoker,
		log:        log,
	}
}

// Login authenticates with email + password
func (s *AdminService) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	admin, err := s.admins.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrUnauthorized
	}

	token, err := s.jwtManager.GenerateToken(admin.ID, admin.Email)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	s.log.Info().Str("admin_id", admin.ID.String()).Msg("admin logged in")

	return &model.LoginResponse{
		Token: token,
		Admin: admin.ToResponse(),
	}, nil
}

// Logout revokes the token until it would have expired anyway
func (s *AdminService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.ValidateToken(tokenString)
	if err != nil {
		return ErrUnauthorized
	}

	expiresIn := time.Until(claims.ExpiresAt.Time)
	return s.revoker.Revoke(ctx, tokenString, expiresIn)
}

// Profile returns the logged-in administrator
func (s *AdminService) Profile(ctx context.Context, adminID uuid.UUID) (*model.AdminResponse, error) {
	admin, err := s.admins.FindByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	resp := admin.ToResponse()
	return &resp, nil
}

// EnsureAdmin creates the administrator, or resets its password when the
// account already exists
func (s *AdminService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || len(password) < 6 {
		return validationError("admin email and a password of at least 6 characters are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	existing, err := s.admins.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if bcrypt.CompareHashAndPassword([]byte(existing.PasswordHash), []byte(password)) == nil {
			return nil
		}
		s.log.Info().Str("email", email).Msg("resetting admin password")
		return s.admins.UpdatePassword(ctx, existing.ID, string(hash))
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.log.Info().Str("email", email).Msg("creating admin account")
		return s.admins.Create(ctx, &model.AdminUser{Email: email, PasswordHash: string(hash)})
	default:
		return err
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
