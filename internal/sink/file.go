package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/douginoz/iceicedata/internal/modules/weather/types"
)

const (
	// StdoutPath sends the JSON document to standard output.
	StdoutPath = "-"
	// DiscardPath disables the text output.
	DiscardPath = "/dev/null"
)

type FileSink struct {
	jsonPath string
	textPath string
	stdout   io.Writer
}

// NewFileSink returns nil when neither output is enabled. jsonPath gains a
// ".json" suffix when it lacks one.
func NewFileSink(jsonPath, textPath string, stdout io.Writer) *FileSink {
	jsonPath = strings.TrimSpace(jsonPath)
	textPath = strings.TrimSpace(textPath)
	if textPath == DiscardPath {
		textPath = ""
	}
	if jsonPath != "" && jsonPath != StdoutPath && !strings.HasSuffix(jsonPath, ".json") {
		jsonPath += ".json"
	}
	if jsonPath == "" && textPath == "" {
		return nil
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	return &FileSink{jsonPath: jsonPath, textPath: textPath, stdout: stdout}
}

func (s *FileSink) Name() string { return NameFile }

// Paths returns the effective JSON and text targets.
func (s *FileSink) Paths() (jsonPath, textPath string) { return s.jsonPath, s.textPath }

func (s *FileSink) Deliver(_ context.Context, rec types.Record, _ types.WindVector) error {
	if s.jsonPath != "" {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if s.jsonPath == StdoutPath {
			if _, err := s.stdout.Write(append(data, '\n')); err != nil {
				return fmt.Errorf("write json to stdout: %w", err)
			}
		} else if err := writeAtomic(s.jsonPath, data); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
	}
	if s.textPath != "" {
		if err := writeAtomic(s.textPath, FormatText(rec)); err != nil {
			return fmt.Errorf("write text: %w", err)
		}
	}
	return nil
}

// FormatText renders one `"key","value","unit","description"` line per key.
func FormatText(rec types.Record) []byte {
	var b bytes.Buffer
	line := func(key, value, unit, desc string) {
		fmt.Fprintf(&b, "%s,%s,%s,%s\n", quote(key), quote(value), quote(unit), quote(desc))
	}
	for _, e := range rec.Entries() {
		var desc string
		if e.Measurement.Description != nil {
			desc = *e.Measurement.Description
		}
		line(string(e.Key), e.Measurement.ValueString(), e.Measurement.UnitString(), desc)
	}
	line("station_id", rec.StationID, "", "")
	line("station_name", rec.StationName, "", "")
	return b.Bytes()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// CheckWritable verifies that path can be created or replaced.
func CheckWritable(path string) error {
	if path == "" || path == StdoutPath || path == DiscardPath {
		return nil
	}
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".iceicedata-check-*")
	if err != nil {
		return fmt.Errorf("output path %q is not writable: %w", path, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// writeAtomic replaces path through a temp file in the same directory so that
// readers never observe a partial document.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
