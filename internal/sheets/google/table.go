package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/api/googleapi"

	"saldo/internal/core"
	"saldo/internal/log"
	"saldo/internal/sheets"
)

// Table stores one record kind in one worksheet, a record per row. Column
// A holds the id and column B the owner; a codec lays out the rest. A
// first row whose id cell reads "id" is treated as a header.
type Table[T core.Entity[T]] struct {
	client *Client
	sheet  string
	codec  Codec[T]
	newID  func() string

	// Row positions shift on delete, so mutations that locate rows run
	// one at a time.
	mu sync.Mutex
}

var _ sheets.RecordStore[core.Transaction] = (*Table[core.Transaction])(nil)

func NewTable[T core.Entity[T]](c *Client, sheet string, codec Codec[T]) *Table[T] {
	return &Table[T]{client: c, sheet: sheet, codec: codec, newID: uuid.NewString}
}

func (t *Table[T]) FetchAll(ctx context.Context, ownerID string) ([]T, error) {
	rows, err := t.rows(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(rows))
	for i, row := range rows {
		cols := toStrings(row)
		if skipRow(cols) || safeGet(cols, colOwner) != ownerID {
			continue
		}
		r, err := t.codec.Decode(cols)
		if err != nil {
			t.client.logger.WarnContext(ctx, "Skipping undecodable row",
				"sheet", t.sheet, "row", i+1, log.FieldError, err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (t *Table[T]) Create(ctx context.Context, record T) (T, error) {
	var zero T
	if record.RecordID() == "" {
		record = record.WithID(t.newID())
	}
	if err := record.Validate(); err != nil {
		return zero, fmt.Errorf("create %s: %w: %w", t.sheet, core.ErrRemoteRejected, err)
	}

	rng := fmt.Sprintf("%s!A:A", t.sheet)
	if err := t.client.api.appendRow(ctx, t.client.spreadsheetID, rng, t.codec.Encode(record)); err != nil {
		return zero, classify("append "+t.sheet, err)
	}
	return record, nil
}

func (t *Table[T]) Update(ctx context.Context, record T) (T, error) {
	var zero T
	if err := record.Validate(); err != nil {
		return zero, fmt.Errorf("update %s: %w: %w", t.sheet, core.ErrRemoteRejected, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	index, owner, err := t.locate(ctx, record.RecordID())
	if err != nil {
		return zero, err
	}
	if owner != record.RecordOwner() {
		return zero, fmt.Errorf("update %s %s: %w", t.sheet, record.RecordID(), core.ErrRemoteRejected)
	}

	rng := fmt.Sprintf("%s!A%d", t.sheet, index+1)
	if err := t.client.api.updateRow(ctx, t.client.spreadsheetID, rng, t.codec.Encode(record)); err != nil {
		return zero, classify("update "+rng, err)
	}
	return record, nil
}

func (t *Table[T]) Delete(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	index, _, err := t.locate(ctx, id)
	if err != nil {
		return err
	}
	if err := t.client.api.deleteRow(ctx, t.client.spreadsheetID, t.sheet, index); err != nil {
		return classify(fmt.Sprintf("delete %s row %d", t.sheet, index+1), err)
	}
	return nil
}

func (t *Table[T]) rows(ctx context.Context) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:Z", t.sheet)
	rows, err := t.client.api.values(ctx, t.client.spreadsheetID, rng)
	if err != nil {
		return nil, classify("read "+rng, err)
	}
	return rows, nil
}

// locate returns the zero-based row index and owner of the row holding id.
func (t *Table[T]) locate(ctx context.Context, id string) (int, string, error) {
	if strings.TrimSpace(id) == "" {
		return 0, "", fmt.Errorf("locate in %s: empty id: %w", t.sheet, core.ErrNotFound)
	}
	rows, err := t.rows(ctx)
	if err != nil {
		return 0, "", err
	}
	for i, row := range rows {
		cols := toStrings(row)
		if safeGet(cols, colID) == id {
			return i, safeGet(cols, colOwner), nil
		}
	}
	return 0, "", fmt.Errorf("%s %s: %w", t.sheet, id, core.ErrNotFound)
}

// classify maps a Sheets API failure onto the remote error taxonomy: 404
// is NotFound, other 4xx except 429 are rejections, everything else is
// treated as the remote being unreachable.
func classify(op string, err error) error {
	if errors.Is(err, core.ErrRemoteRejected) || errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrRemoteUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound:
			return fmt.Errorf("%s: %w: %w", op, core.ErrNotFound, err)
		case gerr.Code == http.StatusTooManyRequests:
		case gerr.Code >= 400 && gerr.Code < 500:
			return fmt.Errorf("%s: %w: %w", op, core.ErrRemoteRejected, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrRemoteUnavailable, err)
}

const (
	colID    = 0
	colOwner = 1
)

func skipRow(cols []string) bool {
	id := safeGet(cols, colID)
	return id == "" || strings.EqualFold(id, "id")
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
