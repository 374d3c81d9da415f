package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/watchtower/internal/config"
	"github.com/your-org/watchtower/internal/models"
)

// ErrNotFound is returned by delete/update helpers when no row matched.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
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

// --- Branches ---

func (s *PostgresStore) CreateBranch(ctx context.Context, b *models.Branch) error {
	if b.Status == "" {
		b.Status = models.BranchStatusActive
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO branches (name, code, address, status) VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		b.Name, b.Code, b.Address, b.Status,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBranch(ctx context.Context, id int64) (*models.Branch, error) {
	b := &models.Branch{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, code, address, status, created_at, updated_at FROM branches WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.Code, &b.Address, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get branch: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) ListBranches(ctx context.Context) ([]models.Branch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, code, address, status, created_at, updated_at FROM branches ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	var branches []models.Branch
	for rows.Next() {
		var b models.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Code, &b.Address, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, b)
	}
	return branches, nil
}

func (s *PostgresStore) UpdateBranch(ctx context.Context, b *models.Branch) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE branches SET name = $1, code = $2, address = $3, status = $4, updated_at = now() WHERE id = $5`,
		b.Name, b.Code, b.Address, b.Status, b.ID)
	if err != nil {
		return fmt.Errorf("update branch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteBranch(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM branches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Devices ---

func (s *PostgresStore) CreateDevice(ctx context.Context, d *models.Device) error {
	if d.Status == "" {
		d.Status = models.DeviceStatusOffline
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO devices (device_id, branch_id, name, device_type, status) VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		d.DeviceID, d.BranchID, d.Name, d.DeviceType, d.Status,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	d := &models.Device{}
	err := s.pool.QueryRow(ctx,
		`SELECT device_id, branch_id, name, device_type, status, created_at, updated_at
		 FROM devices WHERE device_id = $1`, deviceID,
	).Scan(&d.DeviceID, &d.BranchID, &d.Name, &d.DeviceType, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListDevices(ctx context.Context, branchID *int64) ([]models.Device, error) {
	query := `SELECT device_id, branch_id, name, device_type, status, created_at, updated_at FROM devices`
	var args []interface{}
	if branchID != nil {
		query += ` WHERE branch_id = $1`
		args = append(args, *branchID)
	}
	query += ` ORDER BY device_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.DeviceID, &d.BranchID, &d.Name, &d.DeviceType, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func (s *PostgresStore) UpdateDevice(ctx context.Context, d *models.Device) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE devices SET branch_id = $1, name = $2, device_type = $3, status = $4, updated_at = now()
		 WHERE device_id = $5`,
		d.BranchID, d.Name, d.DeviceType, d.Status, d.DeviceID)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteDevice(ctx context.Context, deviceID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM devices WHERE device_id = $1`, deviceID)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
