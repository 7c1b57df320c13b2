package users

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const resetTokenBytes = 32

// RequestPasswordReset issues a single-use reset token and mails the reset link. An unknown
// email succeeds silently so callers cannot probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperr.Validation("missing_email", "email is required")
	}

	var user User
	err := s.db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at ASC, id ASC").
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		s.logError(opRequestReset, "lookup_failed", err, zap.String("email", email))
		return apperr.Internal("password_reset_failed", err)
	}

	token, err := newResetToken()
	if err != nil {
		s.logError(opRequestReset, "token_generation_failed", err)
		return apperr.Internal("password_reset_failed", err)
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.resetTTL)
	if err := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"reset_token_hash":       digestResetToken(token),
			"reset_token_expires_at": expiresAt,
			"updated_at":             now,
		}).Error; err != nil {
		s.logError(opRequestReset, "token_store_failed", err, zap.String("user_id", user.ID))
		return apperr.Internal("password_reset_failed", err)
	}

	resetURL := s.frontendURL + "/reset-password?token=" + url.QueryEscape(token)
	if err := s.notifier.SendPasswordReset(ctx, email, user.Name, resetURL); err != nil {
		s.logError(opRequestReset, "delivery_failed", err, zap.String("user_id", user.ID))
		if clearErr := s.clearResetToken(ctx, user.ID); clearErr != nil {
			s.logError(opRequestReset, "token_clear_failed", clearErr, zap.String("user_id", user.ID))
		}
		return apperr.Upstream("email_delivery_failed", "failed to send password reset email, please try again later", err)
	}
	return nil
}

// ResetPassword consumes a reset token and replaces the password. The token is cleared in the
// same conditional update that sets the password, so it can be redeemed at most once.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" || password == "" {
		return apperr.Validation("missing_fields", "token and password are required")
	}
	if len(password) < minPasswordLength {
		return apperr.Validation("weak_password", "password must be at least 6 characters")
	}
	invalid := apperr.Validation("invalid_reset_token", "invalid or expired reset token")

	digest := digestResetToken(token)
	now := s.now().UTC()

	var user User
	err := s.db.WithContext(ctx).
		Where("reset_token_hash = ? AND reset_token_expires_at > ?", digest, now).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return invalid
	}
	if err != nil {
		s.logError(opResetPassword, "lookup_failed", err)
		return apperr.Internal("password_reset_failed", err)
	}

	hash, err := hashPassword(password, s.bcryptCost)
	if err != nil {
		if isPasswordTooLong(err) {
			return apperr.Validation("weak_password", "password must be at most 72 bytes")
		}
		s.logError(opResetPassword, "hash_failed", err, zap.String("user_id", user.ID))
		return apperr.Internal("password_reset_failed", err)
	}

	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ? AND reset_token_hash = ?", user.ID, digest).
		Updates(map[string]any{
			"password_hash":          hash,
			"reset_token_hash":       "",
			"reset_token_expires_at": nil,
			"updated_at":             now,
		})
	if result.Error != nil {
		s.logError(opResetPassword, "update_failed", result.Error, zap.String("user_id", user.ID))
		return apperr.Internal("password_reset_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return invalid
	}
	return nil
}

func (s *Service) clearResetToken(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"reset_token_hash":       "",
			"reset_token_expires_at": nil,
		}).Error
}

func newResetToken() (string, error) {
	buffer := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer), nil
}

func digestResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
