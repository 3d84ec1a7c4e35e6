package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/langchou/tesbridge/internal/api/teslemetry"
	"github.com/langchou/tesbridge/internal/models"
)

// 产品类型
const (
	ProductVehicle    = "vehicle"
	ProductEnergySite = "energy_site"
)

// ProductRepository 产品数据仓库
type ProductRepository struct {
	db *DB
}

// NewProductRepository 创建产品仓库
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// ProductFromAPI 把产品列表中的一项转换为存储模型，未知产品返回 false
func ProductFromAPI(p teslemetry.Product) (*models.Product, bool, error) {
	m := &models.Product{}
	switch {
	case p.IsVehicle():
		m.Kind = ProductVehicle
		m.ResourceID = p.VIN
		m.Name = p.DisplayName
	case p.IsEnergySite():
		m.Kind = ProductEnergySite
		m.ResourceID = strconv.FormatInt(p.EnergySiteID, 10)
		m.Name = p.SiteName
	default:
		return nil, false, nil
	}

	raw, err := json.Marshal(p.Raw)
	if err != nil {
		return nil, false, fmt.Errorf("encode product: %w", err)
	}
	m.Raw = raw
	return m, true, nil
}

// Upsert 创建或更新产品
func (r *ProductRepository) Upsert(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (kind, resource_id, name, raw, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, resource_id) DO UPDATE SET
			name = EXCLUDED.name,
			raw = EXCLUDED.raw,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	now := time.Now()
	err := r.db.Pool.QueryRow(ctx, query,
		p.Kind,
		p.ResourceID,
		p.Name,
		p.Raw,
		now,
		now,
	).Scan(&p.ID, &p.CreatedAt)

	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}

	p.UpdatedAt = now
	return nil
}

// SyncAll 保存产品列表中的全部车辆与站点
func (r *ProductRepository) SyncAll(ctx context.Context, products []teslemetry.Product) error {
	for _, p := range products {
		m, ok, err := ProductFromAPI(p)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := r.Upsert(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// List 获取所有产品
func (r *ProductRepository) List(ctx context.Context) ([]*models.Product, error) {
	query := `
		SELECT id, kind, resource_id, name, raw, created_at, updated_at
		FROM products ORDER BY id
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p := &models.Product{}
		err := rows.Scan(
			&p.ID,
			&p.Kind,
			&p.ResourceID,
			&p.Name,
			&p.Raw,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}

	return products, rows.Err()
}
