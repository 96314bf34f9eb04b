package sheets

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// GoogleSheet is a Spreadsheet backed by the Sheets API.
type GoogleSheet struct {
	service       *gsheets.Service
	spreadsheetID string

	mu   sync.Mutex
	tabs map[string]bool
}

// NewGoogleSheet authenticates with a service account key file.
func NewGoogleSheet(ctx context.Context, credentialsFile, spreadsheetID string) (*GoogleSheet, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	service, err := gsheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &GoogleSheet{
		service:       service,
		spreadsheetID: spreadsheetID,
		tabs:          make(map[string]bool),
	}, nil
}

func (g *GoogleSheet) EnsureTab(ctx context.Context, title string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tabs[title] {
		return nil
	}

	ss, err := g.service.Spreadsheets.Get(g.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return err
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			g.tabs[sh.Properties.Title] = true
		}
	}
	if g.tabs[title] {
		return nil
	}

	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			AddSheet: &gsheets.AddSheetRequest{
				Properties: &gsheets.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := g.service.Spreadsheets.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return err
	}
	g.tabs[title] = true
	return nil
}

func (g *GoogleSheet) ReplaceValues(ctx context.Context, title string, rows [][]interface{}) error {
	_, err := g.service.Spreadsheets.Values.
		Clear(g.spreadsheetID, fmt.Sprintf("'%s'!A:E", title), &gsheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}

	_, err = g.service.Spreadsheets.Values.
		Update(g.spreadsheetID, fmt.Sprintf("'%s'!A1", title), &gsheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	return err
}
