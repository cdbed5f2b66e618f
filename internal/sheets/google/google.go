package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"saldo/internal/core"
	"saldo/internal/log"
)

// Config selects the spreadsheet and the service account used to reach it.
// CredentialsJSON wins over CredentialsFile; with neither set the standard
// GOOGLE_APPLICATION_CREDENTIALS file is tried.
type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
}

// Client talks to one spreadsheet. Each record kind lives in its own
// worksheet, see Table.
type Client struct {
	api           valuesAPI
	spreadsheetID string
	logger        *log.Logger
}

// valuesAPI is the slice of the Sheets API the tables need.
type valuesAPI interface {
	values(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	appendRow(ctx context.Context, spreadsheetID, rng string, row []any) error
	updateRow(ctx context.Context, spreadsheetID, rng string, row []any) error
	deleteRow(ctx context.Context, spreadsheetID, sheet string, index int) error
}

func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{
		api:           &service{svc: svc, sheetIDs: make(map[string]int64)},
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config, logger *log.Logger) (*gsheet.Service, error) {
	credentialsJSON, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func loadCredentials(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// service adapts *gsheet.Service to valuesAPI. Values are written RAW so
// that cells read back exactly as the codecs wrote them.
type service struct {
	svc *gsheet.Service

	mu       sync.Mutex
	sheetIDs map[string]int64
}

func (s *service) values(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *service) appendRow(ctx context.Context, spreadsheetID, rng string, row []any) error {
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	_, err := s.svc.Spreadsheets.Values.Append(spreadsheetID, rng, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

func (s *service) updateRow(ctx context.Context, spreadsheetID, rng string, row []any) error {
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	_, err := s.svc.Spreadsheets.Values.Update(spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *service) deleteRow(ctx context.Context, spreadsheetID, sheet string, index int) error {
	sheetID, err := s.sheetID(ctx, spreadsheetID, sheet)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(index),
					EndIndex:        int64(index + 1),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	_, err = s.svc.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}

// sheetID resolves a worksheet title to its numeric id, which batch
// updates need. Ids never change for a title, so they are remembered.
func (s *service) sheetID(ctx context.Context, spreadsheetID, title string) (int64, error) {
	s.mu.Lock()
	id, ok := s.sheetIDs[title]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	resp, err := s.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for _, sh := range resp.Sheets {
		if sh.Properties == nil || sh.Properties.Title != title {
			continue
		}
		s.mu.Lock()
		s.sheetIDs[title] = sh.Properties.SheetId
		s.mu.Unlock()
		return sh.Properties.SheetId, nil
	}
	return 0, fmt.Errorf("worksheet %q: %w", title, core.ErrRemoteRejected)
}
