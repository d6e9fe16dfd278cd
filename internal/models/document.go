package models

import "time"

// Document references a rendered file stored on disk (typically the PDF of
// a sent quote, streamed back by the tracked download endpoint).
type Document struct {
	ID        uint   `gorm:"primaryKey"`
	OwnerType string // ex: "Quote"
	OwnerID   uint   // ID de l'entité liée
	Name      string // nom du fichier
	Path      string // chemin du fichier sur disque
	MimeType  string // type MIME
	CreatedAt time.Time
	UpdatedAt time.Time
}
