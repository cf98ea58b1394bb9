package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/facegate/internal/store"
	"github.com/pgvector/pgvector-go"
)

// IdentityRepository provides PostgreSQL-backed identity storage.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

const identityColumns = `employee_id, name, embedding, dim, model, metric, quality, enrollment_id, image_ref, enrolled_at`

// Get retrieves the enrolled identity for an employee.
func (r *IdentityRepository) Get(ctx context.Context, employeeID string) (*store.Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE employee_id = $1
	`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, employeeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return identity, nil
}

// List returns identities matching the query, ordered by employee ID.
// Matching ignores case, diacritics and dashes on both the employee ID
// and the display name, mirroring store.NormalizeQuery.
func (r *IdentityRepository) List(ctx context.Context, query string) ([]store.Identity, error) {
	normalized := store.NormalizeQuery(query)

	var rows *sql.Rows
	var err error
	if normalized == "" {
		rows, err = r.pool.Query(ctx, `
			SELECT `+identityColumns+`
			FROM identities
			ORDER BY employee_id
		`)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+identityColumns+`
			FROM identities
			WHERE LOWER(REPLACE(unaccent(employee_id), '-', ' ')) LIKE $1
			   OR LOWER(REPLACE(unaccent(name), '-', ' ')) LIKE $1
			ORDER BY employee_id
		`, "%"+normalized+"%")
	}
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var identities []store.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// Count returns the number of enrolled identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// Put stores an identity, replacing any previous enrollment for the employee.
func (r *IdentityRepository) Put(ctx context.Context, identity store.Identity) error {
	query := `
		INSERT INTO identities (` + identityColumns + `)
		VALUES ($1, $2, $3::vector, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (employee_id) DO UPDATE SET
			name = EXCLUDED.name,
			embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			model = EXCLUDED.model,
			metric = EXCLUDED.metric,
			quality = EXCLUDED.quality,
			enrollment_id = EXCLUDED.enrollment_id,
			image_ref = EXCLUDED.image_ref,
			enrolled_at = EXCLUDED.enrolled_at
	`

	vec := pgvector.NewVector(identity.Embedding)
	_, err := r.pool.Exec(ctx, query,
		identity.EmployeeID,
		identity.Name,
		vec,
		identity.Dim,
		identity.Model,
		identity.Metric,
		identity.Quality,
		identity.EnrollmentID,
		identity.ImageRef,
		identity.EnrolledAt,
	)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// Delete removes an identity.
func (r *IdentityRepository) Delete(ctx context.Context, employeeID string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM identities WHERE employee_id = $1", employeeID)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete identity rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanIdentity.
type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row scanner) (*store.Identity, error) {
	var identity store.Identity
	var vec pgvector.Vector

	if err := row.Scan(
		&identity.EmployeeID,
		&identity.Name,
		&vec,
		&identity.Dim,
		&identity.Model,
		&identity.Metric,
		&identity.Quality,
		&identity.EnrollmentID,
		&identity.ImageRef,
		&identity.EnrolledAt,
	); err != nil {
		return nil, err
	}

	identity.Embedding = vec.Slice()
	return &identity, nil
}

// Verify interface compliance
var _ store.IdentityWriter = (*IdentityRepository)(nil)
