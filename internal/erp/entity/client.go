package entity

import (
	"time"
)

// Client is a workshop customer. CRUD lives outside this core; the gates
// only resolve the record and require a tax identifier before converting
// or invoicing.
type Client struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID  string    `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	RUT       string    `json:"rut" gorm:"size:20;index"`
	Email     string    `json:"email" gorm:"size:128"`
	Phone     string    `json:"phone" gorm:"size:32"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Client) TableName() string {
	return "erp_clients"
}

// Vehicle is a client vehicle serviced by the workshop.
type Vehicle struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID    string    `json:"tenant_id" gorm:"type:uuid;not null;index"`
	ClientID    string    `json:"client_id" gorm:"type:uuid;not null;index"`
	PlateNumber string    `json:"plate_number" gorm:"size:20;not null;index"`
	Brand       string    `json:"brand" gorm:"size:64"`
	Model       string    `json:"model" gorm:"size:64"`
	Year        int       `json:"year"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Vehicle) TableName() string {
	return "erp_vehicles"
}
