// Package google mirrors the day schedule into a Google Sheet the floor
// staff keep open. The sheet is a read-only projection; the ledger stays the
// system of record.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"lineup/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
}

func NewSheetsService(credentialsFile, spreadsheetID string) (*SheetsService, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &SheetsService{service: srv, spreadsheetID: spreadsheetID}, nil
}

// TestConnection reads the first cell so startup fails fast on a revoked key.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, "Schedule!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// ServiceAccountEmail is what the operator shares the spreadsheet with.
func (s *SheetsService) ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// ReplaceDaySchedule rewrites the sheet tab for one day from scratch.
// Clear-then-update keeps stale rows from lingering after cancellations.
func (s *SheetsService) ReplaceDaySchedule(ctx context.Context, day time.Time, reservations []*models.Reservation) error {
	rangeData := "Schedule!A:H"

	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, rangeData, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("unable to clear schedule sheet: %v", err)
	}

	values := [][]interface{}{
		{fmt.Sprintf("Schedule for %s", day.Format("2006-01-02"))},
		{"Code", "Resource", "Start", "End", "Party", "Status", "Guest", "Phone"},
	}
	for _, r := range reservations {
		resourceName := r.ResourceName
		if resourceName == "" {
			resourceName = "any table"
		}
		values = append(values, []interface{}{
			r.ConfirmationCode,
			resourceName,
			r.Start.Format("15:04"),
			r.End.Format("15:04"),
			r.PartySize,
			r.Status,
			r.GuestName,
			r.GuestPhone,
		})
	}

	valueRange := &sheets.ValueRange{Values: values}
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, "Schedule!A1", valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("unable to update schedule sheet: %v", err)
	}
	return nil
}
