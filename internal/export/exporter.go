// Package export streams decisions out of any store as gzip-compressed
// JSON lines, giving operators a portable snapshot independent of which
// backend is active.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"adl/internal/store"
)

// pageSize bounds how many records are pulled per List call.
const pageSize = 200

// Write streams every decision to w as gzip-compressed JSON lines, ordered
// by creation time ascending. Returns the number of records written.
func Write(ctx context.Context, s store.Store, w io.Writer) (int, error) {
	zw := gzip.NewWriter(w)
	enc := json.NewEncoder(zw)

	exported := 0
	for offset := 0; ; offset += pageSize {
		page, err := s.List(ctx, store.ListQuery{
			Limit:     pageSize,
			Offset:    offset,
			SortBy:    "created_at",
			SortOrder: store.OrderAsc,
		})
		if err != nil {
			zw.Close()
			return exported, fmt.Errorf("list decisions: %w", err)
		}
		for _, slim := range page.Decisions {
			// List pages carry tags only; fetch the full record so the
			// snapshot includes reasons, bridge, and deliberation.
			full, err := s.Get(ctx, slim.ID)
			if err != nil {
				zw.Close()
				return exported, fmt.Errorf("load decision %s: %w", slim.ID, err)
			}
			if full == nil {
				continue
			}
			if err := enc.Encode(full); err != nil {
				zw.Close()
				return exported, fmt.Errorf("encode decision %s: %w", slim.ID, err)
			}
			exported++
		}
		if offset+pageSize >= page.Total {
			break
		}
	}

	if err := zw.Close(); err != nil {
		return exported, fmt.Errorf("finish compressed stream: %w", err)
	}
	return exported, nil
}

// WriteFile exports to a file path, creating or truncating it.
func WriteFile(ctx context.Context, s store.Store, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	n, werr := Write(ctx, s, f)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	return n, werr
}

// Read decodes a snapshot produced by Write, returning records in stream
// order.
func Read(r io.Reader) ([]json.RawMessage, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open compressed stream: %w", err)
	}
	defer zr.Close()

	var out []json.RawMessage
	dec := json.NewDecoder(zr)
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == io.EOF {
			break
		} else if err != nil {
			return out, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, raw)
	}
	return out, nil
}
