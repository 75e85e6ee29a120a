// Command export writes the reservation book for a date range to an XLSX
// file. Run it from cron or by hand before a busy weekend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"lineup/internal/config"
	"lineup/internal/database"
	"lineup/internal/export"
	"lineup/internal/logging"
	"lineup/internal/registry"

	yamlv2 "gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	var (
		fromFlag = flag.String("from", "", "start date (YYYY-MM-DD), defaults to today")
		daysFlag = flag.Int("days", 7, "number of days to export")
	)
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	venuePath := os.Getenv("VENUE_PATH")
	if venuePath == "" {
		venuePath = "configs/venue.yaml"
	}
	data, err := os.ReadFile(venuePath)
	if err != nil {
		return fmt.Errorf("read venue file: %w", err)
	}
	var venueFile config.VenueFile
	if err := yamlv2.Unmarshal(data, &venueFile); err != nil {
		return fmt.Errorf("parse venue file: %w", err)
	}
	if err := config.ValidateResources(venueFile.Resources); err != nil {
		return err
	}

	reg, err := registry.New(venueFile.Venue, venueFile.Resources)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	startDate := time.Now().Truncate(24 * time.Hour)
	if *fromFlag != "" {
		startDate, err = time.Parse("2006-01-02", *fromFlag)
		if err != nil {
			return fmt.Errorf("invalid -from date: %w", err)
		}
	}
	endDate := startDate.AddDate(0, 0, *daysFlag-1)

	exporter := export.New(db, reg, cfg.Exports.Path, logger)
	filePath, err := exporter.ExportRange(context.Background(), startDate, endDate)
	if err != nil {
		return err
	}

	fmt.Println(filePath)
	return nil
}
