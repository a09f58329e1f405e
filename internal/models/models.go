package models

import "time"

// Product represents a pantry item in the catalog
type Product struct {
	ProductID         string    `db:"product_id" json:"product_id"`
	Price             Money     `db:"price" json:"price"`
	PurchasePrice     Money     `db:"purchase_price" json:"purchase_price"`
	Category          Category  `db:"category" json:"category"`
	Description       string    `db:"description" json:"description"`
	UPC               string    `db:"upc" json:"upc"`
	Servings          int       `db:"servings" json:"servings"`
	Points            int       `db:"points" json:"points"`
	NutritionScore    int       `db:"nutrition_score" json:"nutrition_score"`
	ImageURL          string    `db:"image_url" json:"image_url"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	DietaryIndicators TagSet    `db:"-" json:"dietary_indicators"`
	Allergens         TagSet    `db:"-" json:"allergens"`
}

// Location is a node in the stock graph
type Location struct {
	LocationID string    `db:"location_id" json:"location_id"`
	System     bool      `db:"system" json:"system"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// System locations with fixed semantics
const (
	LocationPantry   = "Pantry"
	LocationReserved = "Reserved"
	LocationCustomer = "Customer"
)

// SystemLocations are created at startup and can't be renamed or deleted
var SystemLocations = []string{LocationCustomer, LocationReserved, LocationPantry}

// IsSystemLocation reports whether id names one of the fixed locations
func IsSystemLocation(id string) bool {
	for _, loc := range SystemLocations {
		if loc == id {
			return true
		}
	}
	return false
}

// Movement is one immutable ledger entry
type Movement struct {
	MovementID int64     `json:"movement_id"`
	ProductID  string    `json:"product_id"`
	Qty        int64     `json:"qty"`
	From       Endpoint  `json:"from_location"`
	To         Endpoint  `json:"to_location"`
	Price      Money     `json:"price"`
	OrderID    *int64    `json:"order_id,omitempty"`
	Note       string    `json:"note,omitempty"`
	MovedAt    time.Time `json:"moved_at"`
}

// MovementInput is what callers supply to append a movement
type MovementInput struct {
	ProductID string   `json:"product_id"`
	Qty       int64    `json:"qty"`
	From      Endpoint `json:"from_location"`
	To        Endpoint `json:"to_location"`
	OrderID   *int64   `json:"order_id,omitempty"`
	Note      string   `json:"note,omitempty"`
}

// MovementUpdate carries a staff correction; nil or unset fields are left
// unchanged. A null location moves that side to External.
type MovementUpdate struct {
	ProductID *string        `json:"product_id,omitempty"`
	Qty       *int64         `json:"qty,omitempty"`
	From      EndpointChange `json:"from_location"`
	To        EndpointChange `json:"to_location"`
}

// Correction actions
const (
	CorrectionUpdate = "update"
	CorrectionDelete = "delete"
)

// MovementCorrection is the audit record of a staff correction
type MovementCorrection struct {
	CorrectionID int64     `json:"correction_id"`
	MovementID   int64     `json:"movement_id"`
	Action       string    `json:"action"`
	Before       Movement  `json:"before"`
	After        *Movement `json:"after,omitempty"`
	Reason       string    `json:"reason"`
	Actor        string    `json:"actor"`
	CorrectedAt  time.Time `json:"corrected_at"`
}

// Client is a shopper profile
type Client struct {
	ClientID        string     `db:"client_id" json:"client_id"`
	Name            string     `db:"name" json:"name"`
	Email           string     `db:"email" json:"email"`
	Phone           string     `db:"phone" json:"phone"`
	Address         string     `db:"address" json:"address"`
	HouseholdSize   int        `db:"household_size" json:"household_size"`
	Language        string     `db:"language" json:"language"`
	PointsPerVisit  int        `db:"points_per_visit" json:"points_per_visit"`
	VisitsPerPeriod int        `db:"visits_per_period" json:"visits_per_period"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	LastVisit       *time.Time `db:"last_visit" json:"last_visit,omitempty"`
	Allergens       TagSet     `db:"-" json:"allergens"`
	DietaryPrefs    TagSet     `db:"-" json:"dietary_prefs"`

	// EligibilityGroups lists the assistance programs the household qualifies for
	EligibilityGroups TagSet `db:"-" json:"eligibility_groups"`
}

// Order represents one checkout transaction
type Order struct {
	OrderID           int64             `db:"order_id" json:"order_id"`
	ClientID          string            `db:"client_id" json:"client_id"`
	TotalPoints       int               `db:"total_points" json:"total_points"`
	FulfillmentMethod FulfillmentMethod `db:"fulfillment_method" json:"fulfillment_method"`
	SatelliteLocation string            `db:"satellite_location" json:"satellite_location,omitempty"`
	PickupTime        string            `db:"pickup_time" json:"pickup_time,omitempty"`
	NoteToStaff       string            `db:"note_to_staff" json:"note_to_staff,omitempty"`
	Status            OrderStatus       `db:"status" json:"status"`
	IdempotencyKey    *string           `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CancelReason      string            `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
	CompletedAt       *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt       *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	Items             []OrderItem       `db:"-" json:"items"`
}

// OrderItem is a snapshot of one cart line at checkout
type OrderItem struct {
	OrderID   int64    `db:"order_id" json:"order_id"`
	LineNo    int      `db:"line_no" json:"line_no"`
	ProductID string   `db:"product_id" json:"product_id"`
	Quantity  int64    `db:"quantity" json:"quantity"`
	Points    int      `db:"points" json:"points"`
	Category  Category `db:"category" json:"category"`
}

// LinePoints is the point cost of the whole line
func (i OrderItem) LinePoints() int {
	return i.Points * int(i.Quantity)
}

// Availability is the derived stock position of one product
type Availability struct {
	ProductID string           `json:"product_id"`
	OnHand    int64            `json:"on_hand"`
	Balances  map[string]int64 `json:"balances,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
}
