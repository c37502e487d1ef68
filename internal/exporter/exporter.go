package exporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/webharvest/go-harvester/internal/domain"
)

// WriteCSV writes a batch as RFC 4180 CSV. The header row follows the
// batch schema order; nil values serialize as empty strings.
func WriteCSV(batch *domain.Batch, path string) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(batch.Fields); err != nil {
			return err
		}
		row := make([]string, len(batch.Fields))
		for _, rec := range batch.Records {
			for i, field := range batch.Fields {
				row[i] = formatValue(rec[field])
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// WriteJSON writes a batch as an array of objects whose keys follow
// the batch schema order; nil values serialize as JSON null.
func WriteJSON(batch *domain.Batch, path string) error {
	return writeAtomic(path, func(w io.Writer) error {
		var buf bytes.Buffer
		buf.WriteString("[\n")
		for i, rec := range batch.Records {
			if i > 0 {
				buf.WriteString(",\n")
			}
			if err := appendObject(&buf, batch.Fields, rec); err != nil {
				return err
			}
		}
		buf.WriteString("\n]\n")
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// appendObject serializes one record with deterministic key order.
// encoding/json maps sort keys alphabetically, which would break the
// schema ordering contract, so the object is assembled by hand.
func appendObject(buf *bytes.Buffer, fields []string, rec domain.Record) error {
	buf.WriteString("  {")
	for i, field := range fields {
		if i > 0 {
			buf.WriteString(", ")
		}
		key, err := json.Marshal(field)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteString(": ")
		val, err := json.Marshal(rec[field])
		if err != nil {
			return err
		}
		buf.Write(val)
	}
	buf.WriteString("}")
	return nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// writeAtomic writes through a temp file in the destination directory
// and renames it into place, so a failed export never leaves a
// half-written file behind.
func writeAtomic(path string, fn func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return &domain.ExportError{Path: path, Err: err}
	}

	if err := fn(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &domain.ExportError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &domain.ExportError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &domain.ExportError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return &domain.ExportError{Path: path, Err: err}
	}
	return nil
}
