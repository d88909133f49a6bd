package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

// WriteJSONL writes one JSON object per row. Undefined values are null.
func WriteJSONL(w io.Writer, rows []rollpressure.DerivedRow) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding row %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// ReadJSONL parses the output of WriteJSONL.
func ReadJSONL(r io.Reader) ([]rollpressure.DerivedRow, error) {
	var rows []rollpressure.DerivedRow
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var row rollpressure.DerivedRow
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}
