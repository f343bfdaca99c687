package pgx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lborres/bantay/core"
)

const userColumns = `id, email, email_verified, name, display_name, image, role, banned, ban_reason, created_at, updated_at`

func scanUser(row pgx.Row) (*core.User, error) {
	user := &core.User{}
	var role string
	err := row.Scan(&user.ID, &user.Email, &user.EmailVerified, &user.Name, &user.DisplayName, &user.Image,
		&role, &user.Banned, &user.BanReason, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.Role = core.ParseRoles(role)
	return user, nil
}

func (t *tx) CreateUser(ctx context.Context, user *core.User) error {
	query := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := t.q.Exec(ctx, query,
		user.ID, user.Email, user.EmailVerified, user.Name, user.DisplayName, user.Image,
		user.Role.String(), user.Banned, user.BanReason, user.CreatedAt, user.UpdatedAt,
	)
	return mapError(err)
}

func (t *tx) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	return scanOne(ctx, t.q, core.ErrUserNotFound, scanUser,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (t *tx) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return scanOne(ctx, t.q, core.ErrUserNotFound, scanUser,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (t *tx) LockUser(ctx context.Context, id string) (*core.User, error) {
	return scanOne(ctx, t.q, core.ErrUserNotFound, scanUser,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (t *tx) UpdateUser(ctx context.Context, user *core.User) error {
	query := `UPDATE users SET email = $1, email_verified = $2, name = $3, display_name = $4, image = $5,
	          role = $6, banned = $7, ban_reason = $8, updated_at = $9 WHERE id = $10`
	err := execOne(ctx, t.q, core.ErrUserNotFound, query,
		user.Email, user.EmailVerified, user.Name, user.DisplayName, user.Image,
		user.Role.String(), user.Banned, user.BanReason, user.UpdatedAt, user.ID,
	)
	if errors.Is(err, core.ErrUserExists) {
		return core.ErrEmailInUse
	}
	return err
}

// DeleteUser relies on ON DELETE CASCADE for accounts, sessions and verifications.
func (t *tx) DeleteUser(ctx context.Context, id string) error {
	return execOne(ctx, t.q, core.ErrUserNotFound, `DELETE FROM users WHERE id = $1`, id)
}

var sortColumns = map[core.SortField]string{
	core.SortCreatedAt:     "created_at",
	core.SortEmail:         "email",
	core.SortName:          "lower(name)",
	core.SortEmailVerified: "email_verified",
}

func (t *tx) ListUsers(ctx context.Context, filter core.UserFilter, sort core.UserSort, page core.Page) ([]*core.User, int, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Query != "" {
		p := arg("%" + escapeLike(strings.ToLower(filter.Query)) + "%")
		where = append(where, "(lower(email) LIKE "+p+" OR lower(name) LIKE "+p+")")
	}
	if filter.Role != "" {
		where = append(where, arg(filter.Role)+" = ANY(string_to_array(role, ','))")
	}
	if filter.Banned != nil {
		where = append(where, "banned = "+arg(*filter.Banned))
	}
	if filter.EmailVerified != nil {
		where = append(where, "email_verified = "+arg(*filter.EmailVerified))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := t.q.QueryRow(ctx, `SELECT count(*) FROM users`+clause, args...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	column, ok := sortColumns[sort.Field]
	if !ok {
		column = sortColumns[core.SortCreatedAt]
	}
	direction := "ASC"
	if sort.Desc {
		direction = "DESC"
	}
	// ties keep insertion order regardless of direction
	query := `SELECT ` + userColumns + ` FROM users` + clause +
		` ORDER BY ` + column + ` ` + direction + `, seq ASC`
	if page.Limit > 0 {
		query += ` LIMIT ` + arg(page.Limit)
	}
	if page.Offset > 0 {
		query += ` OFFSET ` + arg(page.Offset)
	}

	users, err := scanAll(ctx, t.q, scanUser, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (t *tx) CountUsers(ctx context.Context, since time.Time) (*core.UserStats, error) {
	stats := &core.UserStats{}
	err := t.q.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE 'admin' = ANY(string_to_array(role, ','))),
		       count(*) FILTER (WHERE banned)
		FROM users`).Scan(&stats.TotalUsers, &stats.AdminUsers, &stats.BannedUsers)
	if err != nil {
		return nil, mapError(err)
	}

	rows, err := t.q.Query(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM') AS month,
		       count(*) FILTER (WHERE is_admin),
		       count(*) FILTER (WHERE NOT is_admin AND banned),
		       count(*) FILTER (WHERE NOT is_admin AND NOT banned)
		FROM (SELECT created_at, banned, 'admin' = ANY(string_to_array(role, ',')) AS is_admin
		      FROM users WHERE created_at >= $1) u
		GROUP BY month
		ORDER BY month`, since)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var m core.MonthlySignups
		if err := rows.Scan(&m.Month, &m.Admins, &m.Banned, &m.Regular); err != nil {
			return nil, mapError(err)
		}
		stats.Monthly = append(stats.Monthly, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return stats, nil
}
