package providers

import (
	"context"
	"time"
)

// SheetReader reads raw worksheet values
type SheetReader interface {
	// ReadAll returns every row of the worksheet as strings
	ReadAll(ctx context.Context, spreadsheetID, worksheet string) ([][]string, error)
}

// FileMetadataProvider reports document modification times
type FileMetadataProvider interface {
	ModifiedTime(ctx context.Context, fileID string) (time.Time, error)
}
