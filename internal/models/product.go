package models

import (
	"encoding/json"
	"time"
)

// Product 账户下的车辆或能源站点
type Product struct {
	ID         int64           `json:"id" db:"id"`
	Kind       string          `json:"kind" db:"kind"` // vehicle, energy_site
	ResourceID string          `json:"resource_id" db:"resource_id"`
	Name       string          `json:"name" db:"name"`
	Raw        json.RawMessage `json:"raw" db:"raw"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}
