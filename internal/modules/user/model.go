// README: Single user record with a role tag plus role-specific payloads.
package user

import (
	"time"

	"taxihub/internal/types"
)

type User struct {
	ID        types.ID
	Role      types.Role
	Name      string
	Phone     string
	CreatedAt time.Time

	// Driver holds driver-only fields; nil for clients and dispatchers.
	Driver *DriverPayload
	// Client holds client-only fields; nil otherwise.
	Client *ClientPayload
}

type DriverPayload struct {
	Online        bool
	FCMToken      string
	CarModel      string
	CarPlate      string
	ActivityScore int
}

type ClientPayload struct {
	FCMToken string
}
