package membership

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteOracle resolves participation from the projects, project_members
// and users tables maintained by the project CRUD subsystem.
type SQLiteOracle struct {
	db *sql.DB
}

func NewSQLiteOracle(db *sql.DB) *SQLiteOracle {
	return &SQLiteOracle{db: db}
}

func (o *SQLiteOracle) IsParticipant(ctx context.Context, projectID, userID string) (bool, error) {
	row := o.db.QueryRowContext(ctx,
		"SELECT lead FROM projects WHERE id = @id", sql.Named("id", projectID))

	var lead string
	if err := row.Scan(&lead); err != nil {
		if err == sql.ErrNoRows {
			return false, ErrProjectNotFound
		}
		return false, fmt.Errorf("row.Scan(lead): %w", err)
	}

	if lead == userID {
		return true, nil
	}

	row = o.db.QueryRowContext(ctx,
		`SELECT count(*) FROM project_members
		WHERE project_id = @project_id AND user_id = @user_id`,
		sql.Named("project_id", projectID), sql.Named("user_id", userID))

	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("row.Scan(count): %w", err)
	}
	if count > 0 {
		return true, nil
	}

	row = o.db.QueryRowContext(ctx,
		"SELECT role FROM users WHERE id = @id", sql.Named("id", userID))

	var role string
	if err := row.Scan(&role); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("row.Scan(role): %w", err)
	}

	return role == AdminRole, nil
}
