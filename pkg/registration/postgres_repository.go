package registration

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const registrationColumns = `service, username, email, password_hash, state,
	COALESCE(verification_token, ''), COALESCE(password_reset_token, ''),
	COALESCE(token_expires_at, 'epoch'::timestamptz), COALESCE(identity_id, ''),
	created_at, updated_at`

// PostgresRegistrationRepository implements RegistrationRepository backed by
// a registrations table. All conditional semantics are expressed as
// conditional SQL writes so concurrent consumers race on the database row,
// not on application state.
type PostgresRegistrationRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRegistrationRepository creates a new PostgreSQL-based registration repository
func NewPostgresRegistrationRepository(db *pgxpool.Pool) *PostgresRegistrationRepository {
	return &PostgresRegistrationRepository{db: db}
}

func scanRegistration(row pgx.Row) (Registration, error) {
	var reg Registration
	var state string
	err := row.Scan(
		&reg.Service,
		&reg.Username,
		&reg.Email,
		&reg.PasswordHash,
		&state,
		&reg.VerificationToken,
		&reg.PasswordResetToken,
		&reg.TokenExpiresAt,
		&reg.IdentityID,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	)
	if err != nil {
		return Registration{}, err
	}
	reg.State = State(state)
	return reg, nil
}

// GetByKey returns the registration for the composite key
func (r *PostgresRegistrationRepository) GetByKey(ctx context.Context, key Key) (Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE service = $1 AND username = $2
	`
	reg, err := scanRegistration(r.db.QueryRow(ctx, query, key.Service, key.Username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Registration{}, ErrRegistrationNotFound
		}
		return Registration{}, err
	}
	return reg, nil
}

// Create inserts a new registration if the key is absent
func (r *PostgresRegistrationRepository) Create(ctx context.Context, reg Registration) error {
	query := `
		INSERT INTO registrations (service, username, email, password_hash, state,
			verification_token, password_reset_token, token_expires_at, identity_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, 'epoch'::timestamptz), NULLIF($9, ''))
		ON CONFLICT (service, username) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		reg.Service,
		reg.Username,
		reg.Email,
		reg.PasswordHash,
		string(reg.State),
		reg.VerificationToken,
		reg.PasswordResetToken,
		normalizeExpiry(reg.TokenExpiresAt),
		reg.IdentityID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateKey
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateKey
	}
	return nil
}

// QueryByUsername returns all registrations for a username
func (r *PostgresRegistrationRepository) QueryByUsername(ctx context.Context, username string) ([]Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE username = $1
		ORDER BY service
	`
	return r.queryRegistrations(ctx, query, username)
}

// QueryByEmail returns all registrations for an email address
func (r *PostgresRegistrationRepository) QueryByEmail(ctx context.Context, email string) ([]Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE email = $1
		ORDER BY service, username
	`
	return r.queryRegistrations(ctx, query, email)
}

func (r *PostgresRegistrationRepository) queryRegistrations(ctx context.Context, query string, arg string) ([]Registration, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	regs := []Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// Delete removes the registration for the composite key
func (r *PostgresRegistrationRepository) Delete(ctx context.Context, key Key) error {
	query := `DELETE FROM registrations WHERE service = $1 AND username = $2`
	tag, err := r.db.Exec(ctx, query, key.Service, key.Username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

// SetToken stores a single-use token, clearing any token of the other kind
func (r *PostgresRegistrationRepository) SetToken(ctx context.Context, key Key, kind TokenKind, token string, expiresAt time.Time) error {
	var query string
	switch kind {
	case TokenKindVerification:
		query = `
			UPDATE registrations
			SET verification_token = $3, password_reset_token = NULL,
				token_expires_at = $4, updated_at = now()
			WHERE service = $1 AND username = $2
		`
	case TokenKindPasswordReset:
		query = `
			UPDATE registrations
			SET password_reset_token = $3, verification_token = NULL,
				token_expires_at = $4, updated_at = now()
			WHERE service = $1 AND username = $2
		`
	default:
		return ErrTokenMismatch
	}
	tag, err := r.db.Exec(ctx, query, key.Service, key.Username, token, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

// ConsumeVerificationToken atomically clears the token and activates the
// registration. The WHERE clause on the stored token value makes the update
// a compare-and-swap: the second of two concurrent consumers matches zero rows.
func (r *PostgresRegistrationRepository) ConsumeVerificationToken(ctx context.Context, key Key, token string) (Registration, error) {
	query := `
		UPDATE registrations
		SET verification_token = NULL, token_expires_at = NULL,
			state = 'active', updated_at = now()
		WHERE service = $1 AND username = $2 AND verification_token = $3
		RETURNING ` + registrationColumns + `
	`
	reg, err := scanRegistration(r.db.QueryRow(ctx, query, key.Service, key.Username, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Registration{}, ErrTokenMismatch
		}
		return Registration{}, err
	}
	return reg, nil
}

// ConsumePasswordResetToken atomically clears the token and replaces the password hash
func (r *PostgresRegistrationRepository) ConsumePasswordResetToken(ctx context.Context, key Key, token string, newHash []byte) (Registration, error) {
	query := `
		UPDATE registrations
		SET password_reset_token = NULL, token_expires_at = NULL,
			password_hash = $4, updated_at = now()
		WHERE service = $1 AND username = $2 AND password_reset_token = $3
		RETURNING ` + registrationColumns + `
	`
	reg, err := scanRegistration(r.db.QueryRow(ctx, query, key.Service, key.Username, token, newHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Registration{}, ErrTokenMismatch
		}
		return Registration{}, err
	}
	return reg, nil
}

// UpdateIdentityID records the federation identity bound to the registration
func (r *PostgresRegistrationRepository) UpdateIdentityID(ctx context.Context, key Key, identityID string) error {
	query := `
		UPDATE registrations
		SET identity_id = $3, updated_at = now()
		WHERE service = $1 AND username = $2
	`
	tag, err := r.db.Exec(ctx, query, key.Service, key.Username, identityID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

func normalizeExpiry(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t
}
