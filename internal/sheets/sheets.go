// Package sheets pushes summary rows into a Google spreadsheet.
package sheets

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// ValueInputOption is sent with every update; values are stored as given.
const ValueInputOption = "RAW"

// Updater writes a block of values starting at a range.
type Updater interface {
	Update(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) (int64, error)
}

// Uploader talks to the Sheets API.
type Uploader struct {
	svc    *gsheets.Service
	logger *zap.Logger
}

// NewUploader authenticates with a service account key file.
func NewUploader(ctx context.Context, credentialsFile string, logger *zap.Logger) (*Uploader, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("sheets credentials file is not set")
	}
	return NewUploaderWithOptions(ctx, logger,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
}

// NewUploaderWithOptions builds an uploader from raw client options.
func NewUploaderWithOptions(ctx context.Context, logger *zap.Logger, opts ...option.ClientOption) (*Uploader, error) {
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{svc: svc, logger: logger}, nil
}

// Update overwrites the cells starting at rng with rows and returns the
// number of cells the API reports as updated.
func (u *Uploader) Update(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) (int64, error) {
	resp, err := u.svc.Spreadsheets.Values.
		Update(spreadsheetID, rng, &gsheets.ValueRange{Values: rows}).
		ValueInputOption(ValueInputOption).
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", rng, err)
	}
	u.logger.Info("cells updated",
		zap.String("spreadsheet", spreadsheetID),
		zap.String("range", resp.UpdatedRange),
		zap.Int64("cells", resp.UpdatedCells),
	)
	return resp.UpdatedCells, nil
}
