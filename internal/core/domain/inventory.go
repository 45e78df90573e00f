package domain

import "time"

// CylinderState distinguishes the two physical states a cylinder can be in.
type CylinderState string

const (
	CylinderFilled CylinderState = "filled"
	CylinderEmpty  CylinderState = "empty"
)

// Warehouse is a physical stocking location. Stock itself is tracked per
// variant globally; warehouses scope transfers and reference numbers.
type Warehouse struct {
	ID        string
	Code      string
	Name      string
	Active    bool
	Version   int // optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CylinderVariant is a distinct cylinder size/type (e.g. 14.2kg).
type CylinderVariant struct {
	ID        string
	Code      string
	Name      string
	Active    bool
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InventoryStock holds the filled/empty counters for one variant.
// Both counters must stay non-negative at all times.
type InventoryStock struct {
	VariantID   string
	FilledQty   int
	EmptyQty    int
	LastUpdated time.Time
}
