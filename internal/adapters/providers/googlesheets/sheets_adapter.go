package googlesheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/zatekoja/medisync/internal/domain/providers"
	"github.com/zatekoja/medisync/pkg/retry"
)

// SheetsAdapter reads worksheet values and file metadata with one set of credentials.
type SheetsAdapter struct {
	sheets *sheets.Service
	drive  *drive.Service
	retry  retry.Config
}

var (
	_ providers.SheetReader          = (*SheetsAdapter)(nil)
	_ providers.FileMetadataProvider = (*SheetsAdapter)(nil)
)

// NewSheetsAdapter builds read-only Sheets and Drive clients. Extra options are passed to both.
func NewSheetsAdapter(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*SheetsAdapter, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	sheetsSvc, err := sheets.NewService(ctx, append(opts, option.WithScopes(sheets.SpreadsheetsReadonlyScope))...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	driveSvc, err := drive.NewService(ctx, append(opts, option.WithScopes(drive.DriveMetadataReadonlyScope))...)
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}

	return &SheetsAdapter{sheets: sheetsSvc, drive: driveSvc, retry: retry.QuickConfig()}, nil
}

// ReadAll returns the worksheet as rows of strings. Ragged rows are kept as the API returns them.
func (a *SheetsAdapter) ReadAll(ctx context.Context, spreadsheetID, worksheet string) ([][]string, error) {
	var resp *sheets.ValueRange
	err := retry.Do(ctx, a.retry, func() error {
		var err error
		resp, err = a.sheets.Spreadsheets.Values.Get(spreadsheetID, worksheet).
			ValueRenderOption("FORMATTED_VALUE").
			Context(ctx).
			Do()
		return classify(err)
	})
	if err != nil {
		return nil, fmt.Errorf("read worksheet %q: %w", worksheet, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			if cell != nil {
				row[i] = fmt.Sprint(cell)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ModifiedTime returns the Drive modifiedTime of the spreadsheet file.
func (a *SheetsAdapter) ModifiedTime(ctx context.Context, fileID string) (time.Time, error) {
	var file *drive.File
	err := retry.Do(ctx, a.retry, func() error {
		var err error
		file, err = a.drive.Files.Get(fileID).
			Fields("modifiedTime").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		return classify(err)
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("get file metadata: %w", err)
	}

	modified, err := time.Parse(time.RFC3339, file.ModifiedTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse modifiedTime %q: %w", file.ModifiedTime, err)
	}
	return modified, nil
}

// classify stops retrying on client errors other than rate limiting.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code < http.StatusInternalServerError && apiErr.Code != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}
