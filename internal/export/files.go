package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
	"github.com/dgnsrekt/roll-pressure/internal/staging"
)

// Format is an output file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

var processedPattern = regexp.MustCompile(`^roll_pressure_(\d{8})\.csv$`)

// FileName returns the artifact name for a run date.
func FileName(f Format, runDate time.Time) string {
	return fmt.Sprintf("roll_pressure_%s.%s", runDate.Format("20060102"), f)
}

// Artifact is one file to produce for a run.
type Artifact struct {
	Name   string
	Format Format
	Write  staging.WriteFunc
}

// Options selects which artifacts to produce.
type Options struct {
	CSV                bool
	JSONL              bool
	Parquet            bool
	ParquetCompression string
}

// Artifacts returns the writers for every enabled format.
func Artifacts(rows []rollpressure.DerivedRow, runDate time.Time, opts Options) []Artifact {
	var out []Artifact
	if opts.CSV {
		out = append(out, Artifact{
			Name:   FileName(FormatCSV, runDate),
			Format: FormatCSV,
			Write:  func(w io.Writer) error { return WriteCSV(w, rows) },
		})
	}
	if opts.JSONL {
		out = append(out, Artifact{
			Name:   FileName(FormatJSONL, runDate),
			Format: FormatJSONL,
			Write:  func(w io.Writer) error { return WriteJSONL(w, rows) },
		})
	}
	if opts.Parquet {
		out = append(out, Artifact{
			Name:   FileName(FormatParquet, runDate),
			Format: FormatParquet,
			Write:  func(w io.Writer) error { return WriteParquet(w, rows, opts.ParquetCompression) },
		})
	}
	return out
}

// LatestProcessed returns the most recent roll_pressure_YYYYMMDD.csv in dir
// and the date encoded in its name.
func LatestProcessed(dir string) (string, time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("reading processed directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if processedPattern.MatchString(entry.Name()) {
			names = append(names, entry.Name())
		}
	}

	if len(names) == 0 {
		return "", time.Time{}, fmt.Errorf("no processed files found in %s: %w", dir, os.ErrNotExist)
	}

	// YYYYMMDD sorts lexicographically
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	m := processedPattern.FindStringSubmatch(names[0])
	date, err := time.Parse("20060102", m[1])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parsing date from %s: %w", names[0], err)
	}
	return filepath.Join(dir, names[0]), date, nil
}
