package dataset

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Sample is one usable training utterance from a metadata file.
type Sample struct {
	MelPath   string
	EmbedPath string
	Text      string
}

// Metadata rows are pipe-delimited:
//
//	id|mel_filename|embed_filename|frames|usable|text
//
// Rows whose usable flag does not parse as a positive integer are filtered
// out before sample construction.
const (
	fieldMel    = 1
	fieldEmbed  = 2
	fieldUsable = 4
	fieldText   = 5
	fieldCount  = 6
)

// LoadMetadata reads a metadata file and resolves mel/embedding filenames
// against melDir and embedDir.
func LoadMetadata(path, melDir, embedDir string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open metadata: %w", err)
	}
	defer f.Close()

	samples, err := ParseMetadata(f, melDir, embedDir)
	if err != nil {
		return nil, fmt.Errorf("dataset: parse metadata %s: %w", path, err)
	}

	slog.Info("loaded dataset metadata", "path", path, "samples", len(samples))

	return samples, nil
}

// ParseMetadata parses pipe-delimited metadata rows from r.
func ParseMetadata(r io.Reader, melDir, embedDir string) ([]Sample, error) {
	var samples []Sample

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++

		row := scanner.Text()
		if strings.TrimSpace(row) == "" {
			continue
		}

		fields := strings.Split(row, "|")
		if len(fields) < fieldCount {
			return nil, fmt.Errorf("row %d has %d fields, want at least %d", line, len(fields), fieldCount)
		}

		usable, err := strconv.Atoi(strings.TrimSpace(fields[fieldUsable]))
		if err != nil {
			return nil, fmt.Errorf("row %d usable flag %q: %w", line, fields[fieldUsable], err)
		}

		if usable <= 0 {
			continue
		}

		samples = append(samples, Sample{
			MelPath:   filepath.Join(melDir, strings.TrimSpace(fields[fieldMel])),
			EmbedPath: filepath.Join(embedDir, strings.TrimSpace(fields[fieldEmbed])),
			Text:      strings.TrimSpace(fields[fieldText]),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan rows: %w", err)
	}

	return samples, nil
}
