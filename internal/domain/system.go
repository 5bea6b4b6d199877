package domain

import (
	"time"
)

// CatalogDocument stores the products document when the database backend is selected.
type CatalogDocument struct {
	ID        int64     `gorm:"primaryKey" json:"id,string"`
	Content   string    `gorm:"type:text" json:"content"`
	Version   int64     `json:"version"`
	Items     int       `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (CatalogDocument) TableName() string {
	return "catalog_document"
}

// SyncLog records one catalog mutation pushed to the store.
type SyncLog struct {
	ID        int64     `json:"id,string"`
	OprName   string    `gorm:"size:64" json:"opr_name"`
	OprIp     string    `gorm:"size:64" json:"opr_ip"`
	Action    string    `gorm:"size:32;index" json:"action"`
	ProductID string    `gorm:"size:64;index" json:"product_id"`
	Items     int       `json:"items"`
	Strategy  string    `gorm:"size:64" json:"strategy"`
	Result    string    `gorm:"size:16" json:"result"`
	Message   string    `gorm:"size:1024" json:"message"`
	OptTime   time.Time `gorm:"index" json:"opt_time"`
}

// TableName Specify table name
func (SyncLog) TableName() string {
	return "sync_log"
}
