package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/facegate/internal/store"
)

// IdentityRepository provides MySQL-backed identity storage.
// MySQL has no vector type, so embeddings are stored as a JSON float array.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new MySQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

const identityColumns = `employee_id, name, embedding, dim, model, metric, quality, enrollment_id, image_ref, enrolled_at`

// Get retrieves the enrolled identity for an employee.
func (r *IdentityRepository) Get(ctx context.Context, employeeID string) (*store.Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE employee_id = ?
	`

	identity, err := scanIdentity(r.pool.db.QueryRowContext(ctx, query, employeeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return identity, nil
}

// List returns identities matching the query, ordered by employee ID.
// MySQL has no unaccent, so diacritic-insensitive filtering happens in Go
// after fetching; identity counts here are small enough for that.
func (r *IdentityRepository) List(ctx context.Context, query string) ([]store.Identity, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		ORDER BY employee_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	normalized := store.NormalizeQuery(query)
	var identities []store.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		if normalized != "" &&
			!strings.Contains(store.NormalizeQuery(identity.EmployeeID), normalized) &&
			!strings.Contains(store.NormalizeQuery(identity.Name), normalized) {
			continue
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
	err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM identities").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// Put stores an identity, replacing any previous enrollment for the employee.
func (r *IdentityRepository) Put(ctx context.Context, identity store.Identity) error {
	data, err := json.Marshal(identity.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	query := `
		INSERT INTO identities (` + identityColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			embedding = VALUES(embedding),
			dim = VALUES(dim),
			model = VALUES(model),
			metric = VALUES(metric),
			quality = VALUES(quality),
			enrollment_id = VALUES(enrollment_id),
			image_ref = VALUES(image_ref),
			enrolled_at = VALUES(enrolled_at)
	`

	_, err = r.pool.db.ExecContext(ctx, query,
		identity.EmployeeID,
		identity.Name,
		data,
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
	result, err := r.pool.db.ExecContext(ctx, "DELETE FROM identities WHERE employee_id = ?", employeeID)
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
	var data []byte

	if err := row.Scan(
		&identity.EmployeeID,
		&identity.Name,
		&data,
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

	if err := json.Unmarshal(data, &identity.Embedding); err != nil {
		return nil, fmt.Errorf("unmarshal embedding: %w", err)
	}
	return &identity, nil
}

// Verify interface compliance
var _ store.IdentityWriter = (*IdentityRepository)(nil)
