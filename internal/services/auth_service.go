package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chinasource/internal/domain"
	"chinasource/internal/mail"
	"chinasource/internal/repos"
	"chinasource/internal/validate"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrWeakPassword       = errors.New("password should be at least 6 characters")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmailTaken         = errors.New("email already registered")
	ErrPhoneTaken         = errors.New("phone already registered")
	ErrInvalidPhone       = errors.New("phone must have 10 digits")
	ErrNameRequired       = errors.New("name is required")
	ErrInvalidRecovery    = errors.New("recovery link is invalid or expired")
	ErrNoSession          = errors.New("no session")
)

const bcryptCost = 12

type AuthService struct {
	Users     *repos.UserRepo
	Customers *repos.CustomerRepo
	Tokens    *Tokens
	Mail      mail.Sender
	Log       *zap.Logger
	// PublicURL is the externally visible origin plus base path, used in
	// mailed links.
	PublicURL   string
	AutoConfirm bool
}

func (s *AuthService) Login(ctx context.Context, sid, email, password string, remember bool) (*domain.User, error) {
	addr, ok := validate.Email(email)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	u, err := s.Users.ByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.EmailConfirmed {
		return nil, ErrEmailNotConfirmed
	}
	if err := s.Users.BindSession(ctx, domain.Session{ID: sid, UserID: u.ID, Remember: remember}); err != nil {
		return nil, err
	}
	return u, nil
}

type SignUp struct {
	Name     string `validate:"required,max=120"`
	Email    string `validate:"required,email"`
	Phone    string `validate:"required"`
	Password string `validate:"required"`
	Confirm  string
}

// Register creates the account and its customer row. Unless auto-confirm is
// on, the account stays unconfirmed until the mailed link is followed.
func (s *AuthService) Register(ctx context.Context, in SignUp) (*domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, ErrNameRequired
	}
	addr, ok := validate.Email(in.Email)
	if !ok {
		return nil, ErrInvalidEmail
	}
	in.Email = addr
	if !validate.Password(in.Password) {
		return nil, ErrWeakPassword
	}
	if in.Password != in.Confirm {
		return nil, ErrPasswordMismatch
	}
	phone, ok := validate.Phone(in.Phone)
	if !ok {
		return nil, ErrInvalidPhone
	}
	in.Phone = phone
	if err := validate.V.Struct(in); err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	emailTaken, phoneTaken, err := s.Customers.Taken(ctx, in.Email, in.Phone)
	if err != nil {
		return nil, err
	}
	if emailTaken {
		return nil, ErrEmailTaken
	}
	if phoneTaken {
		return nil, ErrPhoneTaken
	}

	h, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, err
	}
	u := repos.NewUser{
		ID:        uuid.NewString(),
		Email:     in.Email,
		Name:      in.Name,
		Phone:     in.Phone,
		Hash:      string(h),
		Confirmed: s.AutoConfirm,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		return nil, err
	}
	if !s.AutoConfirm {
		tok, err := s.Tokens.Confirmation(u.ID)
		if err != nil {
			return nil, err
		}
		link := s.PublicURL + "/auth/confirm?token=" + url.QueryEscape(tok)
		if err := s.Mail.SendConfirmation(ctx, u.Email, link); err != nil {
			s.Log.Warn("auth: confirmation mail failed", zap.String("user_id", u.ID), zap.Error(err))
		}
	}
	return s.Users.ByID(ctx, u.ID)
}

func (s *AuthService) Confirm(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.Tokens.Validate(token)
	if err != nil || claims.Type != TokenConfirm {
		return nil, ErrInvalidToken
	}
	if err := s.Users.Confirm(ctx, claims.UserID); err != nil {
		return nil, err
	}
	return s.Users.ByID(ctx, claims.UserID)
}

func (s *AuthService) Logout(ctx context.Context, sid string) error {
	return s.Users.UnbindSession(ctx, sid)
}

func (s *AuthService) CurrentUser(ctx context.Context, sid string) (*domain.User, *domain.Session, error) {
	if sid == "" {
		return nil, nil, ErrNoSession
	}
	return s.Users.SessionUser(ctx, sid)
}

// RequestPasswordReset mails a recovery link when the account exists. It
// reports success either way so the form does not reveal registered emails.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	addr, ok := validate.Email(email)
	if !ok {
		return ErrInvalidEmail
	}
	u, err := s.Users.ByEmail(ctx, addr)
	if err != nil {
		if !errors.Is(err, repos.ErrNotFound) {
			s.Log.Error("auth: reset lookup failed", zap.Error(err))
		}
		return nil
	}
	tok, err := s.Tokens.Recovery(u.ID)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/reset#access_token=%s&type=%s", s.PublicURL, url.QueryEscape(tok), TokenRecovery)
	if err := s.Mail.SendPasswordReset(ctx, u.Email, link); err != nil {
		s.Log.Warn("auth: reset mail failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	return nil
}

// EstablishSession binds sid to the user of a recovery token delivered in a
// URL fragment. The session can only reset the password.
func (s *AuthService) EstablishSession(ctx context.Context, sid, recoveryToken string) (*domain.User, *domain.Session, error) {
	claims, err := s.Tokens.Validate(recoveryToken)
	if err != nil {
		return nil, nil, err
	}
	if claims.Type != TokenRecovery {
		return nil, nil, ErrInvalidToken
	}
	u, err := s.Users.ByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	sess := domain.Session{ID: sid, UserID: u.ID, Recovery: true}
	if err := s.Users.BindSession(ctx, sess); err != nil {
		return nil, nil, err
	}
	return u, &sess, nil
}

// ResetPassword sets a new password for the user of a recovery session and
// turns the session into a normal one.
func (s *AuthService) ResetPassword(ctx context.Context, sid, password, confirm string) (*domain.User, error) {
	u, sess, err := s.CurrentUser(ctx, sid)
	if err != nil || !sess.Recovery {
		return nil, ErrInvalidRecovery
	}
	if !validate.Password(password) {
		return nil, ErrWeakPassword
	}
	if password != confirm {
		return nil, ErrPasswordMismatch
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, err
	}
	if err := s.Users.UpdatePassword(ctx, u.ID, string(h)); err != nil {
		return nil, err
	}
	if !u.EmailConfirmed {
		// Following a mailed link proves the address.
		if err := s.Users.Confirm(ctx, u.ID); err != nil {
			return nil, err
		}
	}
	if err := s.Users.BindSession(ctx, domain.Session{ID: sid, UserID: u.ID}); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateProfile saves name and phone on the account and the customer row.
func (s *AuthService) UpdateProfile(ctx context.Context, userID, name, phone string) (string, string, error) {
	n, ok := validate.Name(name)
	if !ok {
		return "", "", ErrNameRequired
	}
	p, ok := validate.Phone(phone)
	if !ok {
		return "", "", ErrInvalidPhone
	}
	if err := s.Users.UpdateProfile(ctx, userID, n, p); err != nil {
		return "", "", err
	}
	return n, p, nil
}
