package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aegisshield/aegis/internal/apperrors"
	"github.com/aegisshield/aegis/internal/logger"
	"github.com/aegisshield/aegis/internal/models"
	"github.com/aegisshield/aegis/internal/repository"
	"github.com/aegisshield/aegis/internal/service/auth/tokencodec"
)

type Config struct {
	// Hasher to use during registration or login
	// If not set the default bcrypt hasher is used
	Hasher PasswordHasher

	// Logger for auth events
	// If not set nothing is logged
	Logger logger.Logger
}

// Auth service
// Composes the token codec, the credential hasher and the role resolver
// into the login, refresh and validate flows.
// Stateless per call: safe for concurrent use.
type Service struct {
	codec    *tokencodec.Codec
	hasher   PasswordHasher
	resolver RoleResolver
	storage  repository.Storage
	logger   logger.Logger
}

func NewService(cfg Config, codec *tokencodec.Codec, storage repository.Storage) (*Service, error) {
	if codec == nil || storage == nil {
		return nil, errors.New("codec and storage must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Service{
		codec:    codec,
		hasher:   hasher,
		resolver: NewRoleResolver(storage.Role()),
		storage:  storage,
		logger:   log,
	}, nil
}

type RegisterParams struct {
	Username string
	Email    string
	Password string
	FullName string
}

// Register creates a new user account.
// New accounts start active but unverified, so they cannot log in until
// verification is completed by user management.
func (s *Service) Register(ctx context.Context, arg RegisterParams) (models.User, error) {
	var user models.User

	hash, err := s.hasher.Hash(arg.Password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err = s.storage.User().CreateUser(ctx, repository.CreateUserParams{
		Username:     arg.Username,
		Email:        arg.Email,
		PasswordHash: hash,
		FullName:     arg.FullName,
		IsActive:     true,
		IsVerified:   false,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicateUser) {
			s.logger.Warn("registration rejected, user exists", "username", arg.Username)
			return user, apperrors.ErrDuplicateUser
		}
		return user, fmt.Errorf("error while creating user. Err: %w", err)
	}

	s.logger.Info("user registered", "username", user.Username, "user_id", user.ID)
	return user, nil
}

// Login authenticates a username-or-email and password pair and mints a
// fresh token bundle with the roles active at this instant
func (s *Service) Login(ctx context.Context, usernameOrEmail string, password string) (models.TokenBundle, error) {
	var bundle models.TokenBundle

	user, err := s.storage.User().GetUserByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			s.logger.Warn("login failed, user not found", "login", usernameOrEmail)
			return bundle, apperrors.ErrUserNotFound
		}
		return bundle, fmt.Errorf("error while loading user. Err: %w", err)
	}

	// Account state is checked before the password so a correct
	// credential makes no difference for an inactive account
	if !user.AccountActive() {
		s.logger.Warn("login failed, account inactive", "username", user.Username)
		return bundle, apperrors.ErrAccountInactive
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.logger.Warn("login failed, invalid password", "username", user.Username)
		return bundle, apperrors.ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.storage.User().UpdateLastLogin(ctx, user.ID, now); err != nil {
		return bundle, fmt.Errorf("error while updating last login. Err: %w", err)
	}
	user.LastLoginAt = &now

	bundle, err = s.mintBundle(ctx, user)
	if err != nil {
		return bundle, err
	}

	s.logger.Info("login successful", "username", user.Username, "user_id", user.ID)
	return bundle, nil
}

// Refresh mints a new access token for a valid refresh token.
// The refresh token itself is returned unchanged: its expiration is
// never extended by use.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (models.TokenBundle, error) {
	var bundle models.TokenBundle

	claims, err := s.codec.Parse(refreshToken)
	if err != nil {
		s.logger.Warn("refresh failed, token rejected", "error", err.Error())
		return bundle, apperrors.ErrInvalidToken
	}
	if claims.TokenType != tokencodec.TypeRefresh {
		s.logger.Warn("refresh failed, wrong token type", "type", claims.TokenType)
		return bundle, apperrors.ErrInvalidToken
	}

	userID, err := claims.UserID()
	if err != nil {
		return bundle, apperrors.ErrInvalidToken
	}

	user, err := s.storage.User().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			s.logger.Warn("refresh failed, user not found", "user_id", userID)
			return bundle, apperrors.ErrUserNotFound
		}
		return bundle, fmt.Errorf("error while loading user. Err: %w", err)
	}

	if !user.AccountActive() {
		s.logger.Warn("refresh failed, account inactive", "username", user.Username)
		return bundle, apperrors.ErrAccountInactive
	}

	// Roles are resolved fresh, the refresh token carries none
	roles, err := s.resolver.ActiveRoleNames(ctx, user.ID)
	if err != nil {
		return bundle, err
	}

	access, err := s.codec.IssueAccess(user.ID, user.Username, roles)
	if err != nil {
		return bundle, err
	}

	s.logger.Info("token refreshed", "username", user.Username, "user_id", user.ID)
	return models.TokenBundle{
		Access:  access,
		Refresh: refreshToken,
		User:    user,
		Roles:   roles,
	}, nil
}

// Validate answers whether the bearer token authorizes a request.
// It never fails the surrounding pipeline: an absent, malformed or
// expired token is an ordinary negative outcome, the cause is only
// logged. On success the user snapshot carries freshly resolved roles,
// not the snapshot embedded in the token.
func (s *Service) Validate(ctx context.Context, bearerToken string) models.AuthOutcome {
	invalid := models.AuthOutcome{Valid: false, Roles: []string{}}

	if bearerToken == "" {
		return invalid
	}

	claims, err := s.codec.Parse(bearerToken)
	if err != nil {
		s.logger.Debug("validate rejected token", "error", err.Error())
		return invalid
	}
	if claims.TokenType != tokencodec.TypeAccess {
		s.logger.Debug("validate rejected token, wrong type", "type", claims.TokenType)
		return invalid
	}

	user, err := s.storage.User().GetUserByUsernameOrEmail(ctx, claims.Username)
	if err != nil {
		s.logger.Debug("validate failed to load user", "username", claims.Username, "error", err.Error())
		return invalid
	}

	roles, err := s.resolver.ActiveRoleNames(ctx, user.ID)
	if err != nil {
		s.logger.Debug("validate failed to resolve roles", "username", user.Username, "error", err.Error())
		return invalid
	}

	return models.AuthOutcome{Valid: true, User: user, Roles: roles}
}

// ResetPassword overwrites the user's credential with a new one.
// Returns false without error when no such user exists.
// The admin-only gate lives at the HTTP boundary, not here.
func (s *Service) ResetPassword(ctx context.Context, usernameOrEmail string, newPassword string) (bool, error) {
	user, err := s.storage.User().GetUserByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("error while loading user. Err: %w", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return false, fmt.Errorf("can't use this as password, error=%w", err)
	}

	if err := s.storage.User().UpdatePassword(ctx, user.ID, hash); err != nil {
		return false, fmt.Errorf("error while updating password. Err: %w", err)
	}

	s.logger.Info("password reset", "username", user.Username, "user_id", user.ID)
	return true, nil
}

// TokenRoles returns the role snapshot embedded in a verified access
// token. This is what the boundary uses for role gated endpoints, it is
// deliberately NOT re-resolved from the store.
func (s *Service) TokenRoles(bearerToken string) ([]string, error) {
	claims, err := s.codec.Parse(bearerToken)
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}
	if claims.TokenType != tokencodec.TypeAccess {
		return nil, apperrors.ErrInvalidToken
	}
	if claims.Roles == nil {
		return []string{}, nil
	}
	return claims.Roles, nil
}

// mintBundle resolves active roles and mints a full access+refresh pair
func (s *Service) mintBundle(ctx context.Context, user models.User) (models.TokenBundle, error) {
	var bundle models.TokenBundle

	roles, err := s.resolver.ActiveRoleNames(ctx, user.ID)
	if err != nil {
		return bundle, err
	}

	access, err := s.codec.IssueAccess(user.ID, user.Username, roles)
	if err != nil {
		return bundle, err
	}

	refresh, err := s.codec.IssueRefresh(user.ID)
	if err != nil {
		return bundle, err
	}

	return models.TokenBundle{
		Access:  access,
		Refresh: refresh.Value,
		User:    user,
		Roles:   roles,
	}, nil
}
