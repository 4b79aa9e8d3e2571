package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/templui/storyline/internal/apperr"
	"github.com/templui/storyline/internal/model"
	"github.com/templui/storyline/internal/repository"
	"github.com/templui/storyline/internal/validation"
)

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx repository.DBTX) error) error
}

type RegisterParams struct {
	Contact   string
	Password  string
	FullName  string
	Gender    string
	BirthDate *time.Time
}

// AccountParams carries a partial edit of an account's personal details.
// Nil fields are left as is.
type AccountParams struct {
	FullName  *string
	Gender    *string
	BirthDate *time.Time
}

type RegisterResult struct {
	Account   *model.Account `json:"account"`
	Challenge *Challenge     `json:"challenge"`
}

type LoginResult struct {
	Account   *model.Account `json:"account"`
	Challenge *Challenge     `json:"challenge"`
}

// VerificationResult tells the caller what a verified code unlocked.
type VerificationResult struct {
	Account        *model.Account   `json:"account"`
	Purpose        model.OTPPurpose `json:"_type"`
	Token          string           `json:"token,omitempty"`
	TokenExpiresAt *time.Time       `json:"token_expires_at,omitempty"`
	// ResetAuthorized is set for change-password codes; ResetPassword may
	// now be called once for the contact.
	ResetAuthorized bool `json:"reset_authorized,omitempty"`
}

type sessionClaims struct {
	Contact string `json:"contact"`
	jwt.RegisteredClaims
}

type AccountService struct {
	store     TxRunner
	accounts  repository.AccountRepository
	otps      repository.OTPRepository
	otp       *OTPService
	hasher    Hasher
	jwtSecret string
	jwtExpiry time.Duration
	now       func() time.Time
}

func NewAccountService(
	store TxRunner,
	accounts repository.AccountRepository,
	otps repository.OTPRepository,
	otp *OTPService,
	hasher Hasher,
	jwtSecret string,
	jwtExpiry time.Duration,
) *AccountService {
	return &AccountService{
		store:     store,
		accounts:  accounts,
		otps:      otps,
		otp:       otp,
		hasher:    hasher,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *AccountService) SetClock(now func() time.Time) {
	s.now = now
}

// Register creates an inactive account and sends it a register code. An
// earlier registration of the same contact that never got verified is
// replaced.
func (s *AccountService) Register(ctx context.Context, params RegisterParams) (*RegisterResult, error) {
	contact := strings.TrimSpace(params.Contact)
	if contact == "" || strings.TrimSpace(params.Password) == "" {
		return nil, apperr.New(apperr.KindMissingField, "contact and password are required")
	}

	contactType, err := validation.ClassifyContact(contact)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidContact, err.Error())
	}
	contact = validation.NormalizeContact(contact)

	err = validation.ValidatePassword(params.Password)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidField, err.Error())
	}

	fullName := strings.TrimSpace(params.FullName)
	err = validation.ValidateName(fullName)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidField, err.Error())
	}

	gender, err := normalizeGender(params.Gender)
	if err != nil {
		return nil, err
	}

	existing, err := s.accounts.ByContact(ctx, contact)
	if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if existing != nil && existing.Active {
		return nil, apperr.New(apperr.KindAlreadyRegistered, "an account with this contact already exists")
	}

	passwordHash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	record, code, err := s.otp.prepare(contact, model.OTPPurposeRegister)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		Contact:      contact,
		ContactType:  string(contactType),
		PasswordHash: passwordHash,
		FullName:     fullName,
		Gender:       gender,
		BirthDate:    params.BirthDate,
		CreatedAt:    s.now(),
	}

	err = s.store.InTx(ctx, func(tx repository.DBTX) error {
		accounts := s.accounts.WithTx(tx)

		removed, err := accounts.DeleteInactiveByContact(ctx, contact)
		if err != nil {
			return fmt.Errorf("failed to remove stale registration: %w", err)
		}
		if removed > 0 {
			slog.InfoContext(ctx, "replaced unverified registration", "contact", contact)
		}

		err = accounts.Create(ctx, account)
		if errors.Is(err, repository.ErrDuplicateContact) {
			return apperr.New(apperr.KindAlreadyRegistered, "an account with this contact already exists")
		}
		if err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}

		return s.otp.store(ctx, s.otps.WithTx(tx), record)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "account registered", "account_id", account.ID, "contact_type", account.ContactType)
	return &RegisterResult{
		Account:   account,
		Challenge: s.otp.deliver(ctx, record, code),
	}, nil
}

// Login checks the password and sends a login code. The session token is
// only handed out once the code is verified.
func (s *AccountService) Login(ctx context.Context, contact, password string) (*LoginResult, error) {
	contact = validation.NormalizeContact(contact)
	if contact == "" || password == "" {
		return nil, apperr.New(apperr.KindMissingField, "contact and password are required")
	}

	account, err := s.signInAccount(ctx, contact)
	if err != nil {
		return nil, err
	}

	err = s.hasher.Compare(account.PasswordHash, password)
	if errors.Is(err, ErrHashMismatch) {
		return nil, apperr.New(apperr.KindInvalidCredential, "invalid contact or password")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compare password: %w", err)
	}

	challenge, err := s.otp.Issue(ctx, contact, model.OTPPurposeLogin)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Account: account, Challenge: challenge}, nil
}

// CompleteVerification verifies a code and applies its effect.
func (s *AccountService) CompleteVerification(ctx context.Context, contact, code string) (*VerificationResult, error) {
	contact = validation.NormalizeContact(contact)
	if contact == "" {
		return nil, apperr.New(apperr.KindMissingField, "contact is required")
	}

	account, err := s.accounts.ByContact(ctx, contact)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	record, err := s.otp.check(ctx, contact, code)
	if err != nil {
		return nil, err
	}

	result := &VerificationResult{Account: account, Purpose: record.Purpose}

	// Signing has no side effects, so the token is ready before the code is
	// used up.
	switch record.Purpose {
	case model.OTPPurposeLogin:
		if !account.CanSignIn() {
			return nil, apperr.New(apperr.KindNotFound, "account not found")
		}
		token, expiresAt, err := s.issueSession(account)
		if err != nil {
			return nil, err
		}
		result.Token = token
		result.TokenExpiresAt = &expiresAt

	case model.OTPPurposeChangePassword:
		result.ResetAuthorized = true
	}

	now := s.now()
	err = s.store.InTx(ctx, func(tx repository.DBTX) error {
		err := s.otp.markVerified(ctx, s.otps.WithTx(tx), record)
		if err != nil {
			return err
		}
		if record.Purpose != model.OTPPurposeRegister {
			return nil
		}

		err = s.accounts.WithTx(tx).Activate(ctx, account.ID, now)
		if err != nil {
			return fmt.Errorf("failed to activate account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if record.Purpose == model.OTPPurposeRegister {
		account.Active = true
		account.UpdatedAt = now
		slog.InfoContext(ctx, "account activated", "account_id", account.ID)
	}

	return result, nil
}

// ForgotPassword sends a change-password code to an existing account.
func (s *AccountService) ForgotPassword(ctx context.Context, contact string) (*Challenge, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return nil, apperr.New(apperr.KindMissingField, "contact is required")
	}

	_, err := validation.ClassifyContact(contact)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidContact, err.Error())
	}
	contact = validation.NormalizeContact(contact)

	_, err = s.signInAccount(ctx, contact)
	if err != nil {
		return nil, err
	}

	return s.otp.Issue(ctx, contact, model.OTPPurposeChangePassword)
}

// ResetPassword sets a new password. The latest code for the contact must
// be a verified, unexpired change-password code; it is used up here.
func (s *AccountService) ResetPassword(ctx context.Context, contact, newPassword string) (*model.Account, error) {
	contact = validation.NormalizeContact(contact)
	if contact == "" || strings.TrimSpace(newPassword) == "" {
		return nil, apperr.New(apperr.KindMissingField, "contact and new password are required")
	}

	err := validation.ValidatePassword(newPassword)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidField, err.Error())
	}

	account, err := s.accounts.ByContact(ctx, contact)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	unauthorized := apperr.New(apperr.KindUnauthorized, "verify a password reset code first")

	record, err := s.otps.Latest(ctx, contact)
	if errors.Is(err, repository.ErrOTPNotFound) {
		return nil, unauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load code: %w", err)
	}

	now := s.now()
	if !record.Verified || record.Purpose != model.OTPPurposeChangePassword || record.IsExpired(now) {
		return nil, unauthorized
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.store.InTx(ctx, func(tx repository.DBTX) error {
		err := s.otps.WithTx(tx).Consume(ctx, record.ID, model.OTPPurposeChangePassword, now)
		if errors.Is(err, repository.ErrOTPConflict) {
			return unauthorized
		}
		if err != nil {
			return fmt.Errorf("failed to consume code: %w", err)
		}

		err = s.accounts.WithTx(tx).UpdatePassword(ctx, account.ID, passwordHash, now)
		if err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	account.PasswordHash = passwordHash
	account.UpdatedAt = now
	slog.InfoContext(ctx, "password reset", "account_id", account.ID)
	return account, nil
}

// Account looks up an account by id.
func (s *AccountService) Account(ctx context.Context, id string) (*model.Account, error) {
	account, err := s.accounts.ByID(ctx, id)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// Update edits the account's full name, gender and birth date.
func (s *AccountService) Update(ctx context.Context, id string, params AccountParams) (*model.Account, error) {
	account, err := s.Account(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.FullName != nil {
		fullName := strings.TrimSpace(*params.FullName)
		err = validation.ValidateName(fullName)
		if err != nil {
			return nil, apperr.New(apperr.KindInvalidField, err.Error())
		}
		account.FullName = fullName
	}
	if params.Gender != nil {
		account.Gender, err = normalizeGender(*params.Gender)
		if err != nil {
			return nil, err
		}
	}
	if params.BirthDate != nil {
		account.BirthDate = params.BirthDate
	}
	account.UpdatedAt = s.now()

	err = s.accounts.UpdateDetails(ctx, account)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	return account, nil
}

func normalizeGender(gender string) (string, error) {
	gender = strings.ToUpper(strings.TrimSpace(gender))
	if gender != "" && gender != model.GenderMale && gender != model.GenderFemale {
		return "", apperr.New(apperr.KindInvalidField, "gender must be ERKAK or AYOL")
	}
	return gender, nil
}

// VerifySession validates a session token and returns its account id.
func (s *AccountService) VerifySession(tokenString string) (string, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(s.jwtSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", apperr.New(apperr.KindUnauthorized, "invalid or expired session")
	}
	return claims.Subject, nil
}

// Authenticate resolves a session token to an account that may still sign in.
func (s *AccountService) Authenticate(ctx context.Context, tokenString string) (*model.Account, error) {
	accountID, err := s.VerifySession(tokenString)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.ByID(ctx, accountID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, apperr.New(apperr.KindUnauthorized, "invalid or expired session")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if !account.CanSignIn() {
		return nil, apperr.New(apperr.KindUnauthorized, "account is not active")
	}
	return account, nil
}

func (s *AccountService) issueSession(account *model.Account) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.jwtExpiry)

	claims := sessionClaims{
		Contact: account.Contact,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return tokenString, expiresAt, nil
}

// signInAccount returns the account for contact if it is active and not
// deactivated.
func (s *AccountService) signInAccount(ctx context.Context, contact string) (*model.Account, error) {
	account, err := s.accounts.ByContact(ctx, contact)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if !account.CanSignIn() {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	return account, nil
}
