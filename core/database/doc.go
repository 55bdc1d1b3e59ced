// Package database handles database connections and schema inspection.
//
// It wraps GORM and opens either MySQL or SQLite depending on the configured
// driver. The photo library store keeps its catalogue there.
//
// # Schema Inspection
//
// GetTableColumns and MissingColumns report the columns of a table for both
// dialects. The library store uses them to refuse to stream from a table
// that lacks the columns the cursor orders and filters on.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	missing, err := database.MissingColumns(db, "photos", []string{"path", "taken_at"})
package database
