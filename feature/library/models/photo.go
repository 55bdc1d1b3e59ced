package models

import (
	"time"

	"photo-library/core/record"
)

// Photo is a row of the photos table and the payload of library records.
type Photo struct {
	Path     string    `gorm:"column:path;primaryKey;size:512" json:"path"`
	TakenAt  time.Time `gorm:"column:taken_at;index:idx_photos_order" json:"taken_at"`
	ModTime  time.Time `gorm:"column:mtime" json:"mtime"`
	Size     int64     `gorm:"column:size" json:"size"`
	Favorite bool      `gorm:"column:favorite" json:"favorite"`
	Rating   int       `gorm:"column:rating" json:"rating"`
}

// TableName overrides the table name.
func (Photo) TableName() string {
	return "photos"
}

// Columns lists the columns the library reads.
var Columns = []string{"path", "taken_at", "mtime", "size", "favorite", "rating"}

// Record converts the photo into a stream record.
func (p Photo) Record() record.Record {
	return record.Record{
		Identity:  record.NormalizeIdentity(p.Path),
		Timestamp: p.TakenAt,
		Payload:   p,
	}
}

// FromRecord extracts the photo carried by rec.
func FromRecord(rec record.Record) (Photo, bool) {
	switch p := rec.Payload.(type) {
	case Photo:
		return p, true
	case *Photo:
		if p != nil {
			return *p, true
		}
	}
	return Photo{}, false
}
