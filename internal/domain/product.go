package domain

import "time"

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Price       int64     `json:"price"` // unidades menores de moneda
	Stock       int       `json:"stock"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductFilter describe los filtros de listado del catálogo.
type ProductFilter struct {
	Category        string
	Query           string
	MinPrice        int64
	MaxPrice        int64
	IncludeInactive bool
}
