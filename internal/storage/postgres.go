package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
)

// schemaLockKey is the pg_advisory_xact_lock key that serializes EnsureSchema.
const schemaLockKey int64 = 0x66616365 // "face"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS faces_data (
		face_image_key     TEXT PRIMARY KEY,
		original_image_key TEXT NOT NULL,
		person_name        TEXT,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS faces_data_unlabeled_idx
		ON faces_data (created_at, face_image_key)
		WHERE person_name IS NULL OR person_name = ''`,
	`CREATE INDEX IF NOT EXISTS faces_data_person_name_idx
		ON faces_data (person_name)
		WHERE person_name IS NOT NULL AND person_name <> ''`,
	`CREATE INDEX IF NOT EXISTS faces_data_original_idx
		ON faces_data (original_image_key)`,
}

const faceColumns = `face_image_key, original_image_key, person_name, created_at`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the face table and its indexes inside one transaction
// holding an advisory lock, so concurrent cold starts cannot race each other.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, rec models.FaceRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO faces_data (face_image_key, original_image_key, person_name)
		 VALUES ($1, $2, NULLIF($3, ''))
		 ON CONFLICT (face_image_key) DO UPDATE SET
		   original_image_key = EXCLUDED.original_image_key,
		   person_name = COALESCE(EXCLUDED.person_name, faces_data.person_name)`,
		rec.FaceID, rec.OriginalImageKey, rec.PersonName)
	if err != nil {
		return fmt.Errorf("put face %s: %w", rec.FaceID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateName(ctx context.Context, faceID, name string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE faces_data SET person_name = $1 WHERE face_image_key = $2`, name, faceID)
	if err != nil {
		return fmt.Errorf("update name of %s: %w", faceID, err)
	}
	return nil
}

func (s *PostgresStore) ScanUnlabeled(ctx context.Context) (*models.FaceRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+faceColumns+` FROM faces_data
		 WHERE person_name IS NULL OR person_name = ''
		 ORDER BY created_at, face_image_key
		 LIMIT 1`)
	rec, err := scanFace(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan unlabeled: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ScanByName(ctx context.Context, name string) ([]models.FaceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+faceColumns+` FROM faces_data WHERE person_name = $1
		 ORDER BY created_at, face_image_key`, name)
	if err != nil {
		return nil, fmt.Errorf("scan by name: %w", err)
	}
	return collectFaces(rows)
}

func (s *PostgresStore) Get(ctx context.Context, faceID string) (*models.FaceRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+faceColumns+` FROM faces_data WHERE face_image_key = $1`, faceID)
	rec, err := scanFace(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get face %s: %w", faceID, err)
	}
	return rec, nil
}

func (s *PostgresStore) ListUnlabeled(ctx context.Context, limit int) ([]models.FaceRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+faceColumns+` FROM faces_data
		 WHERE person_name IS NULL OR person_name = ''
		 ORDER BY created_at, face_image_key
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unlabeled: %w", err)
	}
	return collectFaces(rows)
}

func (s *PostgresStore) Counts(ctx context.Context) (int, int, error) {
	var total, labeled int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE person_name IS NOT NULL AND person_name <> '')
		 FROM faces_data`).Scan(&total, &labeled)
	if err != nil {
		return 0, 0, fmt.Errorf("count faces: %w", err)
	}
	return total, labeled, nil
}

func scanFace(row pgx.Row) (*models.FaceRecord, error) {
	var rec models.FaceRecord
	var name *string
	if err := row.Scan(&rec.FaceID, &rec.OriginalImageKey, &name, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if name != nil {
		rec.PersonName = *name
	}
	return &rec, nil
}

func collectFaces(rows pgx.Rows) ([]models.FaceRecord, error) {
	defer rows.Close()

	var faces []models.FaceRecord
	for rows.Next() {
		rec, err := scanFace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		faces = append(faces, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}
