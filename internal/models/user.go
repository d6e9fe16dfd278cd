package models

import "time"

// User is the quote owner. Authentication lives in the gateway in front of
// this service; only the identity referenced by Quote.UserID is kept here.
type User struct {
	ID        uint   `gorm:"primaryKey"`
	Email     string `gorm:"uniqueIndex;not null"`
	Nom       string
	Prenom    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
