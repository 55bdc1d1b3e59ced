package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"photo-library/core/config"
	"photo-library/core/database"
	"photo-library/core/record"
	"photo-library/core/storage"
	"photo-library/core/stream"
	"photo-library/feature/library"

	"github.com/spf13/afero"
)

// Reads every source on its own and reports how many photos each one sees,
// and whether the path given as first argument is among them.
func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal(err)
	}

	target := ""
	if len(os.Args) > 1 {
		target = record.NormalizeIdentity(os.Args[1])
	}

	ctx := context.Background()
	lib := cfg.Library
	var sources []stream.Source

	if db, err := database.Connect(cfg.Database); err != nil {
		fmt.Printf("Database unavailable: %v\n", err)
	} else {
		sources = append(sources, library.NewStoreSource(library.NewStore(db, nil)))
	}

	sources = append(sources, library.NewScanSource(afero.NewOsFs(), lib.Root, lib.Extensions, nil))

	if client, err := storage.NewClient(cfg.Storage); err != nil {
		fmt.Printf("Storage unavailable: %v\n", err)
	} else {
		sources = append(sources, library.NewBucketSource(client, cfg.Storage.Bucket, lib.BucketPrefix, cfg.Cache.Prefix, lib.Extensions, nil))
	}

	output := map[string]interface{}{}
	for _, src := range sources {
		fmt.Printf("=== %s ===\n", src.Name())

		count := 0
		var found *record.Record
		var fetchErr error
		for src.HasMore() {
			page, err := src.FetchNext(ctx, 500)
			if err != nil {
				fetchErr = err
				break
			}
			if len(page) == 0 {
				break
			}
			count += len(page)
			for i := range page {
				if target != "" && page[i].Identity == target {
					found = &page[i]
				}
			}
		}

		fmt.Printf("Photos: %d (sorted=%v)\n", count, src.Sorted())
		if fetchErr != nil {
			fmt.Printf("Stopped by error: %v\n", fetchErr)
		}
		if target != "" {
			if found != nil {
				fmt.Printf("FOUND %s: taken_at=%s\n", target, found.Timestamp)
			} else {
				fmt.Printf("NOT FOUND %s\n", target)
			}
		}
		output[src.Name()] = count
	}

	data, _ := json.MarshalIndent(output, "", "  ")
	os.WriteFile("debug_sources.json", data, 0644)

	fmt.Println("\nDebug complete. Check debug_sources.json for details.")
}
