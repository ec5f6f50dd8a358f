// Package export moves server queue rows in and out of JSONL files, one
// row per line.
package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/moussadar/moussadar/internal/portal/db"
	"github.com/moussadar/moussadar/internal/portal/schema"
)

// maxLineBytes bounds a single JSONL line. Matches the API body limit.
const maxLineBytes = 10 << 20

// ExportOptions selects the rows to export.
type ExportOptions struct {
	Out    string    // Output JSONL path
	UserID string    // Only this user's rows (optional)
	Since  time.Time // Only rows at or after this time (optional)
}

// ExportResult contains statistics about an export.
type ExportResult struct {
	Rows int
	Path string
}

// ImportOptions configures an import.
type ImportOptions struct {
	In     string // Input JSONL path
	DryRun bool   // Parse and validate without writing
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	Read     int
	Imported int
	Errors   []string
}

// WriteJSONL encodes items to w, one per line.
func WriteJSONL(w io.Writer, items []schema.QueueItem) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range items {
		if err := enc.Encode(&items[i]); err != nil {
			return fmt.Errorf("failed to encode item %d: %w", items[i].ID, err)
		}
	}
	return nil
}

// ReadJSONL decodes every non-blank line of r. A line that does not decode
// or validate is reported in the returned per-line errors and skipped.
func ReadJSONL(r io.Reader) ([]schema.QueueItem, []string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		items   []schema.QueueItem
		badRows []string
		lineNum int
	)
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var item schema.QueueItem
		if err := json.Unmarshal(line, &item); err != nil {
			badRows = append(badRows, fmt.Sprintf("line %d: invalid JSON: %v", lineNum, err))
			continue
		}
		if err := item.Validate(); err != nil {
			badRows = append(badRows, fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read JSONL at line %d: %w", lineNum+1, err)
	}
	return items, badRows, nil
}

// Export writes the selected queue rows to opts.Out. The file is replaced
// atomically.
func Export(ctx context.Context, database *db.DB, opts ExportOptions) (*ExportResult, error) {
	if opts.Out == "" {
		return nil, fmt.Errorf("output path is required")
	}

	items, err := database.ListQueueItems(ctx, db.QueueFilter{UserID: opts.UserID, Since: opts.Since})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(opts.Out), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var buf bytes.Buffer
	if err := WriteJSONL(&buf, items); err != nil {
		return nil, err
	}

	// Write atomically via temp file
	tmpPath := opts.Out + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0600); err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, opts.Out); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return &ExportResult{Rows: len(items), Path: opts.Out}, nil
}

// Import appends the rows of opts.In to the queue. Rows get new ids and
// keep their timestamps and synced state. Bad lines and failed inserts are
// collected in the result instead of stopping the import.
func Import(ctx context.Context, database *db.DB, opts ImportOptions) (*ImportResult, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(opts.In)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	items, badRows, err := ReadJSONL(file)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		Read:   len(items) + len(badRows),
		Errors: badRows,
	}
	if opts.DryRun {
		return result, nil
	}

	for i := range items {
		if _, err := database.ImportQueueItem(ctx, &items[i]); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("item %d: %v", items[i].ID, err))
			continue
		}
		result.Imported++
	}
	return result, nil
}
