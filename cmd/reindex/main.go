package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"camwatch/internal/config"
	"camwatch/internal/model"
	"camwatch/internal/repository/sqlite"
	"camwatch/internal/service/storage"
)

func main() {
	cfg := config.Load(".env")
	imagesDir := flag.String("images", cfg.ImageDirectory, "Directory containing snapshots")
	dbPath := flag.String("db", cfg.DBPath, "Database path")
	camera := flag.String("camera", cfg.CameraName, "Camera name for recovered snapshots")
	flag.Parse()

	fmt.Printf("Indexing snapshots from %s into %s\n", *imagesDir, *dbPath)

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	repo := sqlite.NewSnapshotRepository(db)

	files, err := os.ReadDir(*imagesDir)
	if err != nil {
		log.Fatalf("Failed to read snapshot directory: %v", err)
	}

	added, present, skipped := 0, 0, 0
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !storage.IsSnapshotName(name) {
			continue
		}
		timestamp, _ := storage.ParseFileName(name)

		exists, err := repo.Exists(name)
		if err != nil {
			log.Fatalf("Failed to query index: %v", err)
		}
		if exists {
			present++
			continue
		}

		info, err := file.Info()
		if err != nil {
			log.Printf("⚠️  Failed to get info for %s: %v", name, err)
			skipped++
			continue
		}

		// detections are not recoverable from the file
		_, err = repo.Save(&model.Snapshot{
			Filename:  name,
			Camera:    *camera,
			Timestamp: timestamp,
			FilePath:  filepath.Join(*imagesDir, name),
			FileSize:  info.Size(),
		}, nil)
		if err != nil {
			log.Printf("⚠️  Failed to index %s: %v", name, err)
			skipped++
			continue
		}
		added++
	}

	fmt.Printf("✅ Indexed %d snapshots (%d already present, %d skipped)\n", added, present, skipped)
}
