package domain

import "time"

// StatusRemoved marks a recorded container that no longer exists in the runtime.
const StatusRemoved = "removed"

// ContainerRecord is the ownership entry kept for every container launched
// through the API.
type ContainerRecord struct {
	ID        string    `json:"id"`
	UserID    uint      `json:"user_id"`
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
