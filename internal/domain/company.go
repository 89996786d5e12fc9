package domain

import "time"

// Company scopes users, chat access and admin screens.
type Company struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Domain    string    `json:"domain" db:"domain"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
