// Package export writes the reservation book to an XLSX file the venue
// manager can print or archive. One column per day, one row per resource.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lineup/internal/domain"
	"lineup/internal/models"
	"lineup/internal/registry"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

type Exporter struct {
	store    domain.Store
	registry *registry.Registry
	path     string
	logger   zerolog.Logger
}

func New(store domain.Store, reg *registry.Registry, path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{
		store:    store,
		registry: reg,
		path:     path,
		logger:   logger.With().Str("component", "export").Logger(),
	}
}

// ExportRange writes an XLSX grid of reservations between startDate and
// endDate inclusive and returns the file path.
func (e *Exporter) ExportRange(ctx context.Context, startDate, endDate time.Time) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	reservations, err := e.store.ListByDateRange(ctx, startDate, endDate.AddDate(0, 0, 1))
	if err != nil {
		return "", fmt.Errorf("error getting reservations: %v", err)
	}

	venue := e.registry.Venue()
	resources, err := e.registry.ResourcesFor(venue.ID)
	if err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Reservations"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s: %s - %s",
		venue.Name, startDate.Format("02.01.2006"), endDate.Format("02.01.2006")))

	dateCols := e.writeDateHeaders(f, sheetName, startDate, endDate)
	e.writeResourceRows(f, sheetName, resources)
	e.writeReservationCells(f, sheetName, resources, reservations, dateCols)

	_ = f.SetColWidth(sheetName, "A", "A", 25)
	for i := 'B'; i <= 'Z'; i++ {
		_ = f.SetColWidth(sheetName, string(i), string(i), 24)
	}

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("reservations_%s_to_%s.xlsx",
		startDate.Format("2006-01-02"),
		endDate.Format("2006-01-02"))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("export file created")
	return filePath, nil
}

func (e *Exporter) writeDateHeaders(f *excelize.File, sheetName string, startDate, endDate time.Time) map[string]int {
	col := 2
	current := startDate
	dateCols := make(map[string]int)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	for !current.After(endDate) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(sheetName, cell, current.Format("02.01"))
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
		dateCols[current.Format("2006-01-02")] = col

		col++
		current = current.AddDate(0, 0, 1)
	}
	return dateCols
}

func (e *Exporter) writeResourceRows(f *excelize.File, sheetName string, resources []models.Resource) {
	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})

	row := 3
	for _, res := range resources {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(sheetName, cell, fmt.Sprintf("%s (%d)", res.Name, res.Capacity))
		_ = f.SetCellStyle(sheetName, cell, cell, style)
		row++
	}
}

func (e *Exporter) writeReservationCells(
	f *excelize.File, sheetName string,
	resources []models.Resource,
	reservations []*models.Reservation,
	dateCols map[string]int,
) {
	byDayResource := make(map[string]map[int64][]*models.Reservation)
	for _, r := range reservations {
		if r.Status == models.StatusCancelled {
			continue
		}
		day := r.Start.Format("2006-01-02")
		if byDayResource[day] == nil {
			byDayResource[day] = make(map[int64][]*models.Reservation)
		}
		byDayResource[day][r.ResourceID] = append(byDayResource[day][r.ResourceID], r)
	}

	wrapStyle, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
	})

	for day, col := range dateCols {
		row := 3
		for _, res := range resources {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			var cellValue string
			for _, r := range byDayResource[day][res.ID] {
				cellValue += fmt.Sprintf("%s-%s %s (%d)\n",
					r.Start.Format("15:04"), r.End.Format("15:04"), r.GuestName, r.PartySize)
			}
			if cellValue == "" {
				cellValue = "free"
			}
			_ = f.SetCellValue(sheetName, cell, cellValue)
			_ = f.SetCellStyle(sheetName, cell, cell, wrapStyle)
			row++
		}
	}
}
