// Command captain-archive inspects and maintains the archive database
// of a captain data directory. Run it against a stopped captain or a
// copy of the database; bbolt allows a single writer.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/quarterdeck/captain/pkg/archive"
	"github.com/quarterdeck/captain/pkg/duration"
	clog "github.com/quarterdeck/captain/pkg/log"
)

var (
	dataDir    = flag.String("data-dir", "./data", "Captain data directory")
	listOnly   = flag.Bool("list", false, "List archived chores")
	exportPath = flag.String("export", "", "Export the archive as JSON to this file")
	pruneAge   = flag.String("prune", "", "Prune chores older than this age (DD-hh:mm:ss)")
	dryRun     = flag.Bool("dry-run", false, "Show what would be pruned without deleting")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags)
	clog.Init(clog.Config{Level: clog.ErrorLevel})

	dbPath := filepath.Join(*dataDir, "captain", "archive.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("Archive not found at %s", dbPath)
	}

	arch, err := archive.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open archive: %v", err)
	}
	defer arch.Close()

	switch {
	case *listOnly:
		listArchive(arch)
	case *exportPath != "":
		exportArchive(arch, *exportPath)
	case *pruneAge != "":
		pruneArchive(arch, *pruneAge, *dryRun)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func listArchive(arch *archive.Archive) {
	chores, err := arch.List()
	if err != nil {
		log.Fatalf("Failed to list archive: %v", err)
	}
	log.Printf("Archive holds %d chores", len(chores))
	for _, chore := range chores {
		end := "-"
		if chore.EndTime != 0 {
			end = time.Unix(chore.EndTime, 0).Format("2006-01-02 15:04:05")
		}
		log.Printf("  %d  %-10s %-10s ended %-20s %s",
			chore.ID, chore.Owner, chore.Status, end, chore.Reason)
	}
}

func exportArchive(arch *archive.Archive, path string) {
	chores, err := arch.List()
	if err != nil {
		log.Fatalf("Failed to list archive: %v", err)
	}
	data, err := json.MarshalIndent(chores, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode archive: %v", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", path, err)
	}
	log.Printf("✓ Exported %d chores to %s", len(chores), path)
}

func pruneArchive(arch *archive.Archive, age string, dryRun bool) {
	maxAge, err := duration.Parse(age)
	if err != nil {
		log.Fatalf("Bad prune age %q: %v", age, err)
	}
	if duration.IsUnlimited(maxAge) {
		log.Fatalf("Prune age must be positive, got %q", age)
	}
	cutoff := time.Now().Unix() - maxAge

	if dryRun {
		chores, err := arch.List()
		if err != nil {
			log.Fatalf("Failed to list archive: %v", err)
		}
		count := 0
		for _, chore := range chores {
			if chore.EndTime != 0 && chore.EndTime < cutoff {
				count++
			}
		}
		log.Printf("[DRY RUN] Would prune %d of %d chores older than %s", count, len(chores), age)
		return
	}

	removed, err := arch.Prune(cutoff)
	if err != nil {
		log.Fatalf("Prune failed: %v", err)
	}
	log.Printf("✓ Pruned %d chores older than %s", removed, age)
}
