package dbq

import "context"

const userColumns = `id, email, password_hash, display_name, phone, created_at, updated_at`

type CreateUserParams struct {
	Email        string
	PasswordHash string
	DisplayName  string
	Phone        *string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	var u User
	ts := now()
	err := q.get(ctx, &u, `
		INSERT INTO users (email, password_hash, display_name, phone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+userColumns,
		arg.Email, arg.PasswordHash, arg.DisplayName, arg.Phone, ts, ts,
	)
	return u, err
}

func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	var u User
	err := q.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return u, err
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := q.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return u, err
}

// GetUserByPhone matches an E.164 phone. Phones are not unique; the oldest
// account wins.
func (q *Queries) GetUserByPhone(ctx context.Context, phone string) (User, error) {
	var u User
	err := q.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE phone = ? ORDER BY id LIMIT 1`, phone)
	return u, err
}

type UpdateUserProfileParams struct {
	ID          int64
	DisplayName string
	Phone       *string
}

func (q *Queries) UpdateUserProfile(ctx context.Context, arg UpdateUserProfileParams) (User, error) {
	var u User
	err := q.get(ctx, &u, `
		UPDATE users SET display_name = ?, phone = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+userColumns,
		arg.DisplayName, arg.Phone, now(), arg.ID,
	)
	return u, err
}
