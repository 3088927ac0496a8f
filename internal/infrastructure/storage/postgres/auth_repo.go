package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"liquimed/internal/core/apperror"
	"liquimed/internal/core/id"
	"liquimed/internal/domain/auth"
)

const (
	usersTable         = "users"
	refreshTokensTable = "refresh_tokens"
)

var (
	userColumns  = ExtractDBColumns[auth.User]()
	tokenColumns = ExtractDBColumns[auth.RefreshToken]()
)

// AuthRepo implements auth.UserRepository and auth.TokenRepository.
type AuthRepo struct {
	txManager *TxManager
}

var (
	_ auth.UserRepository  = (*AuthRepo)(nil)
	_ auth.TokenRepository = (*AuthRepo)(nil)
)

// NewAuthRepo creates a new auth repository.
func NewAuthRepo(txManager *TxManager) *AuthRepo {
	return &AuthRepo{txManager: txManager}
}

func (r *AuthRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Create inserts a new user.
func (r *AuthRepo) Create(ctx context.Context, user *auth.User) error {
	q := r.builder().
		Insert(usersTable).
		SetMap(StructToMap(user))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("User", "email", user.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *AuthRepo) GetByID(ctx context.Context, userID id.ID) (*auth.User, error) {
	return r.getUser(ctx, squirrel.Eq{"id": userID}, userID.String())
}

// GetByEmail retrieves a user by email.
func (r *AuthRepo) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.getUser(ctx, squirrel.Eq{"email": email}, email)
}

func (r *AuthRepo) getUser(ctx context.Context, pred squirrel.Sqlizer, key string) (*auth.User, error) {
	q := r.builder().
		Select(userColumns...).
		From(usersTable).
		Where(pred)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var user auth.User
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &user, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("User", key)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// Update saves user changes with an optimistic lock on version.
func (r *AuthRepo) Update(ctx context.Context, user *auth.User) error {
	data := StructToMap(user)

	oldVersion, ok := data["version"].(int)
	if !ok {
		return fmt.Errorf("user has no version field")
	}

	delete(data, "id")
	delete(data, "version")
	delete(data, "created_at")

	q := r.builder().
		Update(usersTable).
		SetMap(data).
		Set("version", oldVersion+1).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": user.ID, "version": oldVersion})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("User", user.ID)
	}
	user.Version = oldVersion + 1
	return nil
}

// Exists checks if an email is taken.
func (r *AuthRepo) Exists(ctx context.Context, email string) (bool, error) {
	sql := `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`

	var exists bool
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

// SaveRefreshToken stores a refresh token.
func (r *AuthRepo) SaveRefreshToken(ctx context.Context, token *auth.RefreshToken) error {
	q := r.builder().
		Insert(refreshTokensTable).
		SetMap(StructToMap(token))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token by its hash.
func (r *AuthRepo) GetRefreshToken(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	q := r.builder().
		Select(tokenColumns...).
		From(refreshTokensTable).
		Where(squirrel.Eq{"token_hash": tokenHash})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var token auth.RefreshToken
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &token, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewUnauthorized("invalid refresh token")
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return &token, nil
}

// RevokeRefreshToken marks a single token as revoked.
func (r *AuthRepo) RevokeRefreshToken(ctx context.Context, tokenID id.ID, reason string) error {
	sql := `
		UPDATE refresh_tokens
		SET revoked_at = NOW(), revoke_reason = $2
		WHERE id = $1 AND revoked_at IS NULL
	`

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, tokenID, reason); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllUserTokens marks every live token of a user as revoked.
func (r *AuthRepo) RevokeAllUserTokens(ctx context.Context, userID id.ID, reason string) error {
	sql := `
		UPDATE refresh_tokens
		SET revoked_at = NOW(), revoke_reason = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, userID, reason); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

// CleanupExpiredTokens removes expired and long-revoked tokens.
func (r *AuthRepo) CleanupExpiredTokens(ctx context.Context) (int, error) {
	sql := `
		DELETE FROM refresh_tokens
		WHERE expires_at < NOW() OR revoked_at < NOW() - INTERVAL '30 days'
	`

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("cleanup tokens: %w", err)
	}
	return int(result.RowsAffected()), nil
}
