package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/templui/storyline/internal/model"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrDuplicateContact = errors.New("contact already exists")
)

type AccountRepository interface {
	WithTx(tx DBTX) AccountRepository
	Create(ctx context.Context, account *model.Account) error
	ByID(ctx context.Context, id string) (*model.Account, error)
	ByContact(ctx context.Context, contact string) (*model.Account, error)
	DeleteInactiveByContact(ctx context.Context, contact string) (int64, error)
	Activate(ctx context.Context, id string, now time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error
	UpdateDetails(ctx context.Context, account *model.Account) error
	Deactivate(ctx context.Context, id string, now time.Time) error
}

type accountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) WithTx(tx DBTX) AccountRepository {
	return &accountRepository{db: tx}
}

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.Role == "" {
		account.Role = model.RoleUser
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.UpdatedAt = account.CreatedAt

	query := `
		INSERT INTO accounts (id, contact, contact_type, password_hash, active, role, full_name, gender, birth_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Contact,
		account.ContactType,
		account.PasswordHash,
		account.Active,
		account.Role,
		account.FullName,
		account.Gender,
		account.BirthDate,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateContact
	}
	return err
}

func (r *accountRepository) ByID(ctx context.Context, id string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.GetContext(ctx, account, `SELECT * FROM accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) ByContact(ctx context.Context, contact string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.GetContext(ctx, account, `SELECT * FROM accounts WHERE contact = $1`, contact)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

// DeleteInactiveByContact removes registrations that never completed
// verification so the contact can be registered again.
func (r *accountRepository) DeleteInactiveByContact(ctx context.Context, contact string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE contact = $1 AND active = $2`, contact, false)
	if err != nil {
		return 0, err
	}
	return rowsAffected(result)
}

func (r *accountRepository) Activate(ctx context.Context, id string, now time.Time) error {
	return r.update(ctx, `UPDATE accounts SET active = $1, updated_at = $2 WHERE id = $3`, true, now, id)
}

func (r *accountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	return r.update(ctx, `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`, passwordHash, now, id)
}

// UpdateDetails writes the personal fields of account.
func (r *accountRepository) UpdateDetails(ctx context.Context, account *model.Account) error {
	return r.update(ctx, `
		UPDATE accounts
		SET full_name = $1, gender = $2, birth_date = $3, updated_at = $4
		WHERE id = $5`,
		account.FullName, account.Gender, account.BirthDate, account.UpdatedAt, account.ID,
	)
}

func (r *accountRepository) Deactivate(ctx context.Context, id string, now time.Time) error {
	return r.update(ctx, `UPDATE accounts SET deactivated_at = $1, updated_at = $1 WHERE id = $2`, now, id)
}

func (r *accountRepository) update(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}
