package domain

import "time"

// Site is a warehouse where pallets are consigned.
type Site struct {
	Code      string    `json:"code" gorm:"type:varchar(16);primaryKey;column:code" validate:"required,alphanum,max=16"`
	Name      string    `json:"name" gorm:"type:text;not null" validate:"required,max=128"`
	Address   string    `json:"address,omitempty" gorm:"type:text" validate:"max=512"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"not null"`
}

func (Site) TableName() string { return "sites" }

// Client is a customer holding a pallet deposit.
type Client struct {
	Code      string    `json:"code" gorm:"type:varchar(32);primaryKey;column:code" validate:"required,alphanum,max=32"`
	Name      string    `json:"name" gorm:"type:text;not null" validate:"required,max=128"`
	Email     string    `json:"email,omitempty" gorm:"type:text" validate:"omitempty,email"`
	Phone     string    `json:"phone,omitempty" gorm:"type:varchar(32)" validate:"omitempty,max=32"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"not null"`
}

func (Client) TableName() string { return "clients" }
