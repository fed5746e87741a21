package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	tenantRepo ports.TenantRepository
	hashSvc    ports.HashService
	tokenSvc   ports.TokenService
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	tenantRepo ports.TenantRepository,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		tenantRepo: tenantRepo,
		hashSvc:    hashSvc,
		tokenSvc:   tokenSvc,
		transactor: transactor,
		log:        log,
	}
}

// Register creates a workspace with its first operator account, atomically.
func (s *AuthServiceImpl) Register(ctx context.Context, req ports.RegisterRequest) (*domain.User, error) {
	if req.TenantName == "" {
		return nil, apperror.Validation("workspace name is required")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperror.Validation("a valid email is required")
	}
	if len(req.Password) < 8 {
		return nil, apperror.Validation("password must be at least 8 characters")
	}

	existing, err := s.tenantRepo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("check existing user: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrEmailExists()
	}

	passwordHash, err := s.hashSvc.Hash(req.Password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	now := time.Now().UTC()
	tenant := &domain.Tenant{
		ID:        uuid.New(),
		Name:      req.TenantName,
		CreatedAt: now,
	}
	user := &domain.User{
		ID:           uuid.New(),
		TenantID:     tenant.ID,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.tenantRepo.CreateTenant(ctx, dbTx, tenant); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create tenant: %w", err))
	}
	if err := s.tenantRepo.CreateUser(ctx, dbTx, user); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create user: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("tenant_id", tenant.ID.String()).
		Str("user_id", user.ID.String()).
		Msg("workspace registered")
	return user, nil
}

// Login verifies credentials and issues a JWT.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	user, err := s.tenantRepo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", time.Time{}, apperror.ErrDatabaseError(fmt.Errorf("load user: %w", err))
	}
	if user == nil {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	ok, err := s.hashSvc.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiresAt, err := s.tokenSvc.Generate(user.ID, user.TenantID)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	s.log.Info().Str("user_id", user.ID.String()).Msg("user logged in")
	return token, expiresAt, nil
}
