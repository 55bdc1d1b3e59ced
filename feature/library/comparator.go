package library

import (
	"photo-library/core/reconcile"
	"photo-library/core/record"
	"photo-library/feature/library/models"
)

// Field names reported by PhotoComparator. They match the column names so
// cache.sensitive_fields can be configured in the same vocabulary.
const (
	FieldTakenAt  = "taken_at"
	FieldModTime  = "mtime"
	FieldSize     = "size"
	FieldFavorite = "favorite"
	FieldRating   = "rating"
)

// PhotoComparator reports which photo columns differ between two versions of
// the same path. Records that do not carry a photo fall back to
// reconcile.DefaultComparator.
var PhotoComparator reconcile.Comparator = reconcile.ComparatorFunc(comparePhotos)

func comparePhotos(old, new record.Record) []string {
	a, okA := models.FromRecord(old)
	b, okB := models.FromRecord(new)
	if !okA || !okB {
		return reconcile.DefaultComparator.CompareFields(old, new)
	}

	var fields []string
	if !a.TakenAt.Equal(b.TakenAt) {
		fields = append(fields, FieldTakenAt)
	}
	if !a.ModTime.Equal(b.ModTime) {
		fields = append(fields, FieldModTime)
	}
	if a.Size != b.Size {
		fields = append(fields, FieldSize)
	}
	if a.Favorite != b.Favorite {
		fields = append(fields, FieldFavorite)
	}
	if a.Rating != b.Rating {
		fields = append(fields, FieldRating)
	}
	return fields
}
