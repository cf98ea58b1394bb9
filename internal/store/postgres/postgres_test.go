//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/store"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.StoreConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testIdentity(employeeID, name string, embedding []float32) store.Identity {
	return store.Identity{
		EmployeeID:   employeeID,
		Name:         name,
		Embedding:    embedding,
		Dim:          len(embedding),
		Model:        "sface",
		Metric:       "cosine",
		Quality:      0.97,
		EnrollmentID: "enr-" + employeeID,
		ImageRef:     "enrollments/" + employeeID + ".jpg",
		EnrolledAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

func makeEmbedding(dim int, seed float32) []float32 {
	emb := make([]float32, dim)
	for i := range emb {
		emb[i] = seed + float32(i)/float32(dim)
	}
	return emb
}

func TestIdentityRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewIdentityRepository(pool)

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get(ctx, "nobody")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("PutAndGet", func(t *testing.T) {
		identity := testIdentity("emp-1001", "Jan Novák", makeEmbedding(128, 0.1))
		if err := repo.Put(ctx, identity); err != nil {
			t.Fatalf("Failed to put identity: %v", err)
		}

		got, err := repo.Get(ctx, "emp-1001")
		if err != nil {
			t.Fatalf("Failed to get identity: %v", err)
		}
		if got.Name != "Jan Novák" {
			t.Errorf("Expected name 'Jan Novák', got '%s'", got.Name)
		}
		if got.Model != "sface" {
			t.Errorf("Expected model 'sface', got '%s'", got.Model)
		}
		if len(got.Embedding) != 128 {
			t.Errorf("Expected 128 dimensions, got %d", len(got.Embedding))
		}
		if got.EnrollmentID != "enr-emp-1001" {
			t.Errorf("Expected enrollment ID 'enr-emp-1001', got '%s'", got.EnrollmentID)
		}
	})

	t.Run("PutReplaces", func(t *testing.T) {
		replacement := testIdentity("emp-1001", "Jan Novák", makeEmbedding(128, 0.9))
		replacement.EnrollmentID = "enr-replaced"
		if err := repo.Put(ctx, replacement); err != nil {
			t.Fatalf("Failed to replace identity: %v", err)
		}

		got, err := repo.Get(ctx, "emp-1001")
		if err != nil {
			t.Fatalf("Failed to get identity: %v", err)
		}
		if got.EnrollmentID != "enr-replaced" {
			t.Errorf("Expected enrollment ID 'enr-replaced', got '%s'", got.EnrollmentID)
		}

		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected 1 identity after replace, got %d", count)
		}
	})

	t.Run("ListOrdered", func(t *testing.T) {
		if err := repo.Put(ctx, testIdentity("emp-0500", "Jiří Dvořák", makeEmbedding(128, 0.2))); err != nil {
			t.Fatalf("Failed to put identity: %v", err)
		}
		if err := repo.Put(ctx, testIdentity("emp-2000", "Alice Smith", makeEmbedding(128, 0.3))); err != nil {
			t.Fatalf("Failed to put identity: %v", err)
		}

		identities, err := repo.List(ctx, "")
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(identities) != 3 {
			t.Fatalf("Expected 3 identities, got %d", len(identities))
		}
		for i := 1; i < len(identities); i++ {
			if identities[i-1].EmployeeID > identities[i].EmployeeID {
				t.Errorf("Identities not ordered by employee ID: %s before %s",
					identities[i-1].EmployeeID, identities[i].EmployeeID)
			}
		}
	})

	t.Run("ListQueryIgnoresDiacritics", func(t *testing.T) {
		identities, err := repo.List(ctx, "dvorak")
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(identities) != 1 || identities[0].EmployeeID != "emp-0500" {
			t.Errorf("Expected only emp-0500 for 'dvorak', got %v", identities)
		}
	})

	t.Run("ListQueryMatchesEmployeeID", func(t *testing.T) {
		identities, err := repo.List(ctx, "2000")
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(identities) != 1 || identities[0].EmployeeID != "emp-2000" {
			t.Errorf("Expected only emp-2000 for '2000', got %v", identities)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ctx, "emp-2000"); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}

		_, err := repo.Get(ctx, "emp-2000")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("DeleteNotFound", func(t *testing.T) {
		err := repo.Delete(ctx, "nobody")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expectedMigrations := []string{
		"001_create_identities.sql",
	}

	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}

	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}

	// Migrate must be idempotent.
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("Second migrate failed: %v", err)
	}
}
