package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"teamportal/internal/domain"
)

const profileColumns = `id,full_name,email,manager_id,role,created_at`

type profileRow struct {
	ID        string         `db:"id"`
	FullName  string         `db:"full_name"`
	Email     string         `db:"email"`
	ManagerID sql.NullString `db:"manager_id"`
	Role      string         `db:"role"`
	CreatedAt string         `db:"created_at"`
}

func (row profileRow) toDomain() domain.Profile {
	return domain.Profile{
		ID:        row.ID,
		FullName:  row.FullName,
		Email:     row.Email,
		ManagerID: nullStringPtr(row.ManagerID),
		Role:      row.Role,
		CreatedAt: row.CreatedAt,
	}
}

func (r Repo) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	var row profileRow
	err := r.DB.GetContext(ctx, &row, r.DB.Rebind(`SELECT `+profileColumns+` FROM profiles WHERE id=?`), id)
	if err == sql.ErrNoRows {
		return domain.Profile{}, ErrNotFound
	}
	if err != nil {
		return domain.Profile{}, errors.Wrapf(err, "get profile %s", id)
	}
	return row.toDomain(), nil
}

// ProfileRole returns the role stored for a profile.
func (r Repo) ProfileRole(ctx context.Context, id string) (string, error) {
	var role string
	err := r.DB.GetContext(ctx, &role, r.DB.Rebind(`SELECT role FROM profiles WHERE id=?`), id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "get role of %s", id)
	}
	return role, nil
}

// ProfilesByIDs looks up many profiles at once; unknown ids are absent from the map.
func (r Repo) ProfilesByIDs(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	res := make(map[string]domain.Profile, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	query, args, err := sqlx.In(`SELECT `+profileColumns+` FROM profiles WHERE id IN (?)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "build profile lookup")
	}
	var rows []profileRow
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "list profiles")
	}
	for _, row := range rows {
		res[row.ID] = row.toDomain()
	}
	return res, nil
}

func (r Repo) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	var rows []profileRow
	if err := r.DB.SelectContext(ctx, &rows, `SELECT `+profileColumns+` FROM profiles ORDER BY full_name, id`); err != nil {
		return nil, errors.Wrap(err, "list profiles")
	}
	res := make([]domain.Profile, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toDomain())
	}
	return res, nil
}

func (r Repo) InsertProfile(ctx context.Context, p domain.Profile) error {
	_, err := r.DB.ExecContext(ctx, r.DB.Rebind(`INSERT INTO profiles(`+profileColumns+`) VALUES (?,?,?,?,?,?)`),
		p.ID, p.FullName, p.Email, nullable(p.ManagerID), p.Role, p.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "insert profile %s", p.ID)
	}
	return nil
}
