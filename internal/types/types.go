// README: Common identifiers and value objects shared across modules.
package types

// ID is an opaque entity identifier (32-char hex from the generator).
type ID string

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PaymentMethod is how the client intends to pay for the ride.
type PaymentMethod string

const (
	PayCash PaymentMethod = "cash"
	PayCard PaymentMethod = "card"
)

// Role tags a user record instead of a class hierarchy.
type Role string

const (
	RoleClient     Role = "client"
	RoleDriver     Role = "driver"
	RoleDispatcher Role = "dispatcher"
)
