package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/platformx/platformx/internal/auth"
	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/repository"
)

// Mailer delivers one-time passcodes.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string) error
}

// LogMailer writes passcodes to the log instead of sending mail.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("component", "mailer")}
}

// SendOTP implements Mailer. The code is only logged at debug level.
func (m *LogMailer) SendOTP(ctx context.Context, email, code string) error {
	m.logger.Info("otp issued", "email", email)
	m.logger.DebugContext(ctx, "otp code", "email", email, "code", code)
	return nil
}

// UserStore is the persistence UserService needs.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetOrCreateUser(ctx context.Context, user *model.User) (*model.User, error)
	UpdateUserProfile(ctx context.Context, id, name string) (*model.User, error)
	UpdateUserWallet(ctx context.Context, id, walletAddress string) (*model.User, error)
}

// UserService handles sign-in and profile operations.
type UserService struct {
	store   UserStore
	billing SubscriptionChecker
	otp     *auth.OTPIssuer
	tokens  *auth.TokenIssuer
	mailer  Mailer
	logger  *slog.Logger
	now     func() time.Time
}

// NewUserService creates a UserService.
func NewUserService(store UserStore, billing SubscriptionChecker, otp *auth.OTPIssuer, tokens *auth.TokenIssuer, mailer Mailer, logger *slog.Logger) *UserService {
	return &UserService{
		store:   store,
		billing: billing,
		otp:     otp,
		tokens:  tokens,
		mailer:  mailer,
		logger:  logger.With("component", "users"),
		now:     time.Now,
	}
}

// GenerateOTP issues a passcode for email and returns the hash the client
// has to send back with it.
func (s *UserService) GenerateOTP(ctx context.Context, email string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}

	code, hash, err := s.otp.Generate(email)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	if err := s.mailer.SendOTP(ctx, email, code); err != nil {
		return "", fmt.Errorf("send otp: %w", err)
	}
	return hash, nil
}

// VerifyOTPInput is a sign-in attempt.
type VerifyOTPInput struct {
	Email         string
	OTP           string
	Hash          string
	WalletAddress string
	Name          string
}

// Session is the result of a successful sign-in.
type Session struct {
	AccessToken string      `json:"accessToken"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	User        *model.User `json:"user"`
}

// VerifyOTP checks the passcode, signs the user up on first use and returns
// an access token.
func (s *UserService) VerifyOTP(ctx context.Context, in VerifyOTPInput) (*Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	if err := s.otp.Verify(email, in.OTP, in.Hash); err != nil {
		if errors.Is(err, auth.ErrOTPExpired) || errors.Is(err, auth.ErrOTPInvalid) {
			return nil, ErrInvalidOTP
		}
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.Split(email, "@")[0]
	}

	now := s.now().UTC()
	user, err := s.store.GetOrCreateUser(ctx, &model.User{
		ID:            generateULID(),
		Email:         email,
		Name:          name,
		WalletAddress: in.WalletAddress,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, err
	}

	if in.WalletAddress != "" && user.WalletAddress != in.WalletAddress {
		user, err = s.store.UpdateUserWallet(ctx, user.ID, in.WalletAddress)
		if err != nil {
			return nil, err
		}
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info("user signed in", "user_id", user.ID)
	return &Session{AccessToken: token, ExpiresAt: expiresAt, User: user}, nil
}

// Profile is a user with their subscription status.
type Profile struct {
	*model.User
	IsSubscriptionActive bool `json:"isSubscriptionActive"`
}

// Me returns the caller's profile.
func (s *UserService) Me(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	active, err := s.billing.IsActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, IsSubscriptionActive: active}, nil
}

// UpdateProfile renames the caller.
func (s *UserService) UpdateProfile(ctx context.Context, userID, name string) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	user, err := s.store.UpdateUserProfile(ctx, userID, name)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return email, nil
}
