package repository

import (
	"database/sql"
	"fmt"
	"time"

	"PadDeck/db"
	"PadDeck/model"
)

// AssetRepository defines the interface for audio asset metadata operations.
type AssetRepository interface {
	CreateAsset(asset *model.AudioAsset) (int64, error)
	GetAssetByID(id int64) (*model.AudioAsset, error)
	GetAssetByObjectKey(objectKey string) (*model.AudioAsset, error)
	ListAssets() ([]*model.AudioAsset, error)
	DeleteAsset(id int64) error
}

// mysqlAssetRepository implements AssetRepository for MySQL.
type mysqlAssetRepository struct {
	DB *sql.DB
}

// NewMySQLAssetRepository creates a new instance of mysqlAssetRepository.
func NewMySQLAssetRepository() AssetRepository {
	return &mysqlAssetRepository{DB: db.DB}
}

// CreateAsset adds a new asset row to the database.
func (r *mysqlAssetRepository) CreateAsset(asset *model.AudioAsset) (int64, error) {
	query := `INSERT INTO audio_assets (display_name, mime_type, object_key, size_bytes, state, created_at, updated_at)
	           VALUES (?, ?, ?, ?, 1, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateAsset: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(asset.DisplayName, asset.MimeType, asset.ObjectKey, asset.SizeBytes, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateAsset: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateAsset: %w", err)
	}
	return id, nil
}

// GetAssetByID retrieves an asset by its ID. Returns (nil, nil) when absent.
func (r *mysqlAssetRepository) GetAssetByID(id int64) (*model.AudioAsset, error) {
	query := `SELECT id, display_name, mime_type, object_key, size_bytes, state, created_at, updated_at
	           FROM audio_assets WHERE id = ? AND state = 1`
	row := r.DB.QueryRow(query, id)

	asset := &model.AudioAsset{}
	err := row.Scan(&asset.ID, &asset.DisplayName, &asset.MimeType, &asset.ObjectKey,
		&asset.SizeBytes, &asset.State, &asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan asset by ID %d: %w", id, err)
	}
	return asset, nil
}

// GetAssetByObjectKey retrieves an asset by its object key. Returns (nil, nil) when absent.
func (r *mysqlAssetRepository) GetAssetByObjectKey(objectKey string) (*model.AudioAsset, error) {
	query := `SELECT id, display_name, mime_type, object_key, size_bytes, state, created_at, updated_at
	           FROM audio_assets WHERE object_key = ? AND state = 1`
	row := r.DB.QueryRow(query, objectKey)

	asset := &model.AudioAsset{}
	err := row.Scan(&asset.ID, &asset.DisplayName, &asset.MimeType, &asset.ObjectKey,
		&asset.SizeBytes, &asset.State, &asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan asset by object key %s: %w", objectKey, err)
	}
	return asset, nil
}

// ListAssets retrieves all active assets ordered by creation time.
func (r *mysqlAssetRepository) ListAssets() ([]*model.AudioAsset, error) {
	query := `SELECT id, display_name, mime_type, object_key, size_bytes, state, created_at, updated_at
	           FROM audio_assets WHERE state = 1 ORDER BY created_at DESC`
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []*model.AudioAsset
	for rows.Next() {
		asset := &model.AudioAsset{}
		if err := rows.Scan(&asset.ID, &asset.DisplayName, &asset.MimeType, &asset.ObjectKey,
			&asset.SizeBytes, &asset.State, &asset.CreatedAt, &asset.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset row: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// DeleteAsset soft deletes an asset.
func (r *mysqlAssetRepository) DeleteAsset(id int64) error {
	query := `UPDATE audio_assets SET state = 0, updated_at = ? WHERE id = ?`
	_, err := r.DB.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete asset %d: %w", id, err)
	}
	return nil
}
