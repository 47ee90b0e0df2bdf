package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/vielimo/service-booking/internal/domain/coupon"
)

// ErrSheetsDisabled is returned by every call when the coupon sheet is not configured.
var ErrSheetsDisabled = errors.New("coupon sheet integration is disabled")

// SheetAdapter is the anti-corruption layer in front of the coupon spreadsheet.
type SheetAdapter interface {
	coupon.Source

	// TestConnection reads the spreadsheet metadata and returns its title.
	TestConnection(ctx context.Context) (string, error)
}

// GoogleSheetAdapter talks to the Google Sheets v4 API with a service account.
type GoogleSheetAdapter struct {
	service       *sheets.Service
	spreadsheetID string
	rng           SheetRange
	rawRange      string
	timeout       time.Duration
	logger        *zap.Logger
}

// NewGoogleSheetAdapter builds a client from an already validated service account.
func NewGoogleSheetAdapter(ctx context.Context, account *ServiceAccount, spreadsheetID, sheetRange string, timeout time.Duration, logger *zap.Logger) (*GoogleSheetAdapter, error) {
	if spreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}
	rng, err := ParseSheetRange(sheetRange)
	if err != nil {
		return nil, err
	}
	if rng.EndCol-rng.StartCol+1 < coupon.ColumnCount {
		return nil, fmt.Errorf("range %q must span %d columns", sheetRange, coupon.ColumnCount)
	}

	svc, err := sheets.NewService(ctx,
		option.WithCredentialsJSON(account.JSON()),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}

	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GoogleSheetAdapter{
		service:       svc,
		spreadsheetID: spreadsheetID,
		rng:           rng,
		rawRange:      sheetRange,
		timeout:       timeout,
		logger:        logger,
	}, nil
}

// FetchAll reads the configured range with unformatted values so numbers arrive as numbers.
func (a *GoogleSheetAdapter) FetchAll(ctx context.Context) (*coupon.Set, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.service.Spreadsheets.Values.Get(a.spreadsheetID, a.rawRange).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read coupon sheet: %w", err)
	}

	set := coupon.ParseRows(resp.Values, a.rng.StartRow)
	a.logger.Debug("coupon sheet read",
		zap.Int("rows", len(resp.Values)),
		zap.Int("coupons", set.Len()),
	)
	return set, nil
}

// UpdateUsedCount writes a single cell in the used_count column.
func (a *GoogleSheetAdapter) UpdateUsedCount(ctx context.Context, rowIndex, usedCount int) error {
	if rowIndex < a.rng.StartRow {
		return fmt.Errorf("row %d is outside the coupon range", rowIndex)
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cell := a.rng.Cell(a.rng.StartCol+coupon.ColUsedCount, rowIndex)
	_, err := a.service.Spreadsheets.Values.Update(a.spreadsheetID, cell, &sheets.ValueRange{
		Values: [][]interface{}{{usedCount}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", cell, err)
	}

	a.logger.Info("coupon usage written",
		zap.String("cell", cell),
		zap.Int("used_count", usedCount),
	)
	return nil
}

// TestConnection returns the spreadsheet title.
func (a *GoogleSheetAdapter) TestConnection(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ss, err := a.service.Spreadsheets.Get(a.spreadsheetID).
		Fields("properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	return ss.Properties.Title, nil
}

// MockSheetAdapter keeps the coupon rows in memory. It backs local development and tests.
type MockSheetAdapter struct {
	mu       sync.Mutex
	rows     [][]interface{}
	startRow int
	failRead error
	reads    int
	writes   int
	logger   *zap.Logger
}

// DemoCouponRows are the rows the in-memory sheet starts with outside tests, laid out like the
// real sheet: code, discount_type, discount_value, min_order, max_usage, used_count.
func DemoCouponRows() [][]interface{} {
	return [][]interface{}{
		{"SAVE10", "percent", 10.0, 0.0, 100.0, 0.0},
		{"FLAT50K", "fixed", 50000.0, 300000.0, 0.0, 0.0},
		{"WELCOME20", "percent", 20.0, 1000000.0, 50.0, 0.0},
		{"LASTONE", "fixed", 100000.0, 0.0, 1.0, 0.0},
	}
}

// NewMockSheetAdapter creates an in-memory sheet whose first row sits at startRow.
func NewMockSheetAdapter(rows [][]interface{}, startRow int, logger *zap.Logger) *MockSheetAdapter {
	return &MockSheetAdapter{rows: rows, startRow: startRow, logger: logger}
}

// FetchAll returns a parsed copy of the rows.
func (m *MockSheetAdapter) FetchAll(ctx context.Context) (*coupon.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.failRead != nil {
		return nil, m.failRead
	}
	return coupon.ParseRows(m.copyRows(), m.startRow), nil
}

// UpdateUsedCount sets the used_count cell of rowIndex.
func (m *MockSheetAdapter) UpdateUsedCount(ctx context.Context, rowIndex, usedCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := rowIndex - m.startRow
	if i < 0 || i >= len(m.rows) {
		return fmt.Errorf("row %d is outside the coupon range", rowIndex)
	}
	for len(m.rows[i]) < coupon.ColumnCount {
		m.rows[i] = append(m.rows[i], nil)
	}
	m.rows[i][coupon.ColUsedCount] = float64(usedCount)
	m.writes++

	m.logger.Info("[MOCK SHEETS] coupon usage written",
		zap.Int("row", rowIndex),
		zap.Int("used_count", usedCount),
	)
	return nil
}

// TestConnection always succeeds unless reads are failing.
func (m *MockSheetAdapter) TestConnection(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead != nil {
		return "", m.failRead
	}
	return "Mock Coupons", nil
}

// SetReadError makes subsequent reads fail with err; nil restores them.
func (m *MockSheetAdapter) SetReadError(err error) {
	m.mu.Lock()
	m.failRead = err
	m.mu.Unlock()
}

// SetRow replaces the row at rowIndex, simulating an edit made directly in the sheet.
func (m *MockSheetAdapter) SetRow(rowIndex int, row []interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := rowIndex - m.startRow
	for len(m.rows) <= i {
		m.rows = append(m.rows, nil)
	}
	m.rows[i] = row
}

// Reads returns how many times FetchAll was called.
func (m *MockSheetAdapter) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Writes returns how many cells were written.
func (m *MockSheetAdapter) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MockSheetAdapter) copyRows() [][]interface{} {
	out := make([][]interface{}, len(m.rows))
	for i, r := range m.rows {
		out[i] = append([]interface{}(nil), r...)
	}
	return out
}

// DisabledSheetAdapter stands in when credentials or configuration are invalid, keeping the
// rest of the service running while every coupon call reports the integration as disabled.
type DisabledSheetAdapter struct {
	Reason error
}

// FetchAll always fails.
func (d DisabledSheetAdapter) FetchAll(context.Context) (*coupon.Set, error) {
	return nil, d.err()
}

// UpdateUsedCount always fails.
func (d DisabledSheetAdapter) UpdateUsedCount(context.Context, int, int) error {
	return d.err()
}

// TestConnection always fails.
func (d DisabledSheetAdapter) TestConnection(context.Context) (string, error) {
	return "", d.err()
}

func (d DisabledSheetAdapter) err() error {
	if d.Reason == nil {
		return ErrSheetsDisabled
	}
	return fmt.Errorf("%w: %v", ErrSheetsDisabled, d.Reason)
}
