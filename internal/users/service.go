package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/apperr"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/auth"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/ids"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	opRegister        = "users.register"
	opAuthenticate    = "users.authenticate"
	opGet             = "users.get"
	opUpdateLinkedIn  = "users.update_linkedin_url"
	opLinkGoogle      = "users.link_google"
	opLinkLinkedIn    = "users.link_linkedin"
	opRequestReset    = "users.request_password_reset"
	opResetPassword   = "users.reset_password"
	defaultResetTTL   = time.Hour
	defaultBcryptCost = bcrypt.DefaultCost
)

var (
	errMissingDatabase      = errors.New("users: database connection required")
	errMissingIDProvider    = errors.New("users: id provider required")
	errMissingResetNotifier = errors.New("users: reset notifier required")
	errMissingFrontendURL   = errors.New("users: frontend url required")
	noOpLogger              = zap.NewNop()
)

// ResetNotifier delivers a password-reset link to a user.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, email, name, resetURL string) error
}

// ServiceConfig describes the dependencies of the identity service.
type ServiceConfig struct {
	Database      *gorm.DB
	Clock         func() time.Time
	IDProvider    ids.Provider
	Logger        *zap.Logger
	BcryptCost    int
	ResetNotifier ResetNotifier
	FrontendURL   string
	ResetTokenTTL time.Duration
}

// Service registers and authenticates users and links provider identities to them.
type Service struct {
	db          *gorm.DB
	now         func() time.Time
	ids         ids.Provider
	logger      *zap.Logger
	bcryptCost  int
	notifier    ResetNotifier
	frontendURL string
	resetTTL    time.Duration
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	if cfg.ResetNotifier == nil {
		return nil, errMissingResetNotifier
	}
	frontendURL := strings.TrimRight(strings.TrimSpace(cfg.FrontendURL), "/")
	if frontendURL == "" {
		return nil, errMissingFrontendURL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = defaultBcryptCost
	}
	resetTTL := cfg.ResetTokenTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}
	return &Service{
		db:          cfg.Database,
		now:         clock,
		ids:         cfg.IDProvider,
		logger:      logger,
		bcryptCost:  cost,
		notifier:    cfg.ResetNotifier,
		frontendURL: frontendURL,
		resetTTL:    resetTTL,
	}, nil
}

// Registration is the input of a local email/password sign-up.
type Registration struct {
	Email              string
	Password           string
	Name               string
	LinkedInProfileURL string
}

// Register creates a local account. The email is the merge key and may only be registered once.
func (s *Service) Register(ctx context.Context, input Registration) (User, error) {
	email := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)
	profileURL := strings.TrimSpace(input.LinkedInProfileURL)
	if email == "" || input.Password == "" || name == "" || profileURL == "" {
		return User{}, apperr.Validation("missing_fields", "email, password, name and linkedinProfileUrl are required")
	}
	if len(input.Password) < minPasswordLength {
		return User{}, apperr.Validation("weak_password", "password must be at least 6 characters")
	}
	if !IsLinkedInURL(profileURL) {
		return User{}, apperr.Validation("invalid_linkedin_url", "please provide a valid LinkedIn URL")
	}

	hash, err := hashPassword(input.Password, s.bcryptCost)
	if err != nil {
		if isPasswordTooLong(err) {
			return User{}, apperr.Validation("weak_password", "password must be at most 72 bytes")
		}
		s.logError(opRegister, "hash_failed", err)
		return User{}, apperr.Internal("registration_failed", err)
	}

	var created User
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
			s.logError(opRegister, "lookup_failed", err, zap.String("email", email))
			return apperr.Internal("registration_failed", err)
		}
		if existing > 0 {
			return apperr.Conflict("email_taken", "email already registered")
		}
		user, err := s.newUser(name, email)
		if err != nil {
			s.logError(opRegister, "id_generation_failed", err)
			return apperr.Internal("registration_failed", err)
		}
		user.PasswordHash = hash
		user.LinkedInProfileURL = profileURL
		if err := tx.Create(&user).Error; err != nil {
			s.logError(opRegister, "insert_failed", err, zap.String("email", email))
			return apperr.Internal("registration_failed", err)
		}
		created = user
		return nil
	})
	if txErr != nil {
		return User{}, txErr
	}
	return created, nil
}

// Authenticate checks an email/password pair. Every mismatch yields the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return User{}, apperr.Validation("missing_fields", "email and password are required")
	}
	invalid := apperr.Unauthorized("invalid_credentials", "invalid email or password")

	var user User
	err := s.db.WithContext(ctx).
		Where("email = ? AND password_hash <> ''", email).
		Order("created_at ASC, id ASC").
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, invalid
	}
	if err != nil {
		s.logError(opAuthenticate, "lookup_failed", err, zap.String("email", email))
		return User{}, apperr.Internal("login_failed", err)
	}
	if !passwordMatches(user.PasswordHash, password) {
		return User{}, invalid
	}
	return user, nil
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, apperr.NotFound("user_not_found", "user not found")
	}
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperr.NotFound("user_not_found", "user not found")
	}
	if err != nil {
		s.logError(opGet, "lookup_failed", err, zap.String("user_id", userID))
		return User{}, apperr.Internal("user_lookup_failed", err)
	}
	return user, nil
}

// UpdateLinkedInProfileURL stores the profile URL the user typed in. It is never derived from
// a provider login.
func (s *Service) UpdateLinkedInProfileURL(ctx context.Context, userID, profileURL string) (User, error) {
	profileURL = strings.TrimSpace(profileURL)
	if profileURL == "" {
		return User{}, apperr.Validation("missing_linkedin_url", "LinkedIn profile URL is required")
	}
	if !IsLinkedInURL(profileURL) {
		return User{}, apperr.Validation("invalid_linkedin_url", "please provide a valid LinkedIn URL")
	}
	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"linkedin_profile_url": profileURL,
			"updated_at":           s.now().UTC(),
		})
	if result.Error != nil {
		s.logError(opUpdateLinkedIn, "update_failed", result.Error, zap.String("user_id", userID))
		return User{}, apperr.Internal("profile_update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return User{}, apperr.NotFound("user_not_found", "user not found")
	}
	return s.Get(ctx, userID)
}

// LinkGoogle resolves the account for a verified Google profile, creating it on first sign-in.
// Repeated sign-ins with the same Google subject resolve to the same user.
func (s *Service) LinkGoogle(ctx context.Context, profile auth.GoogleProfile) (User, error) {
	subject := strings.TrimSpace(profile.Subject)
	email := normalizeEmail(profile.Email)
	if subject == "" {
		return User{}, apperr.Validation("missing_provider_subject", "google account has no identifier")
	}
	if email == "" {
		return User{}, apperr.Validation("missing_provider_email", "google account has no email")
	}

	var linked User
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		err := tx.Where("google_id = ? OR google_email = ?", subject, email).
			Order("created_at ASC, id ASC").
			Take(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user, err = s.newUser(displayName(profile.Name, email), email)
			if err != nil {
				s.logError(opLinkGoogle, "id_generation_failed", err)
				return apperr.Internal("google_link_failed", err)
			}
			user.GoogleID = subject
			user.GoogleEmail = email
			if err := tx.Create(&user).Error; err != nil {
				s.logError(opLinkGoogle, "insert_failed", err, zap.String("google_id", subject))
				return apperr.Internal("google_link_failed", err)
			}
		case err != nil:
			s.logError(opLinkGoogle, "lookup_failed", err, zap.String("google_id", subject))
			return apperr.Internal("google_link_failed", err)
		default:
			user.GoogleID = subject
			user.GoogleEmail = email
			if user.Email == "" {
				user.Email = email
			}
			user.UpdatedAt = s.now().UTC()
			if err := tx.Save(&user).Error; err != nil {
				s.logError(opLinkGoogle, "save_failed", err, zap.String("user_id", user.ID))
				return apperr.Internal("google_link_failed", err)
			}
		}
		linked = user
		return nil
	})
	if txErr != nil {
		return User{}, txErr
	}
	return linked, nil
}

// LinkLinkedIn attaches a LinkedIn identity. When sessionUserID names an existing user the
// identity is linked to that account; otherwise the account is found by LinkedIn email or created.
// The user-supplied profile URL is left untouched.
func (s *Service) LinkLinkedIn(ctx context.Context, sessionUserID string, profile auth.LinkedInProfile) (User, error) {
	subject := strings.TrimSpace(profile.Subject)
	email := normalizeEmail(profile.Email)
	if subject == "" {
		return User{}, apperr.Validation("missing_provider_subject", "linkedin account has no identifier")
	}
	if email == "" {
		return User{}, apperr.Validation("missing_provider_email", "LinkedIn email required")
	}
	sessionUserID = strings.TrimSpace(sessionUserID)

	var linked User
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		found := false
		if sessionUserID != "" {
			err := tx.Where("id = ?", sessionUserID).Take(&user).Error
			switch {
			case err == nil:
				found = true
			case !errors.Is(err, gorm.ErrRecordNotFound):
				s.logError(opLinkLinkedIn, "session_lookup_failed", err, zap.String("user_id", sessionUserID))
				return apperr.Internal("linkedin_link_failed", err)
			}
		}
		if !found {
			err := tx.Where("linkedin_email = ?", email).
				Order("created_at ASC, id ASC").
				Take(&user).Error
			switch {
			case err == nil:
				found = true
			case !errors.Is(err, gorm.ErrRecordNotFound):
				s.logError(opLinkLinkedIn, "lookup_failed", err, zap.String("linkedin_id", subject))
				return apperr.Internal("linkedin_link_failed", err)
			}
		}

		if !found {
			created, err := s.newUser(displayName(profile.Name, email), email)
			if err != nil {
				s.logError(opLinkLinkedIn, "id_generation_failed", err)
				return apperr.Internal("linkedin_link_failed", err)
			}
			user = created
		}

		user.LinkedInID = subject
		user.LinkedInEmail = email
		user.LinkedInProfileSearchURL = ProfileSearchURL(profile.Name, profile.GivenName, profile.FamilyName)
		user.LinkedInPicture = strings.TrimSpace(profile.Picture)
		if user.Email == "" {
			user.Email = email
		}

		if !found {
			if err := tx.Create(&user).Error; err != nil {
				s.logError(opLinkLinkedIn, "insert_failed", err, zap.String("linkedin_id", subject))
				return apperr.Internal("linkedin_link_failed", err)
			}
		} else {
			user.UpdatedAt = s.now().UTC()
			if err := tx.Save(&user).Error; err != nil {
				s.logError(opLinkLinkedIn, "save_failed", err, zap.String("user_id", user.ID))
				return apperr.Internal("linkedin_link_failed", err)
			}
		}
		linked = user
		return nil
	})
	if txErr != nil {
		return User{}, txErr
	}
	return linked, nil
}

func (s *Service) newUser(name, email string) (User, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	return User{
		ID:        id,
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("users service error", attrs...)
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func displayName(name, email string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	return email
}
