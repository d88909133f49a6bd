package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

type parquetRecord struct {
	Date             int32    `parquet:"name=date, type=INT32, convertedtype=DATE"`
	Market           string   `parquet:"name=market, type=BYTE_ARRAY, convertedtype=UTF8"`
	SpecNetLong      *float64 `parquet:"name=spec_net_long, type=DOUBLE, repetitiontype=OPTIONAL"`
	OpenInterest     *float64 `parquet:"name=open_interest, type=DOUBLE, repetitiontype=OPTIONAL"`
	DaysToExpiry     int32    `parquet:"name=days_to_expiry, type=INT32"`
	PositioningRatio *float64 `parquet:"name=positioning_ratio, type=DOUBLE, repetitiontype=OPTIONAL"`
	PosScore         *float64 `parquet:"name=pos_score, type=DOUBLE, repetitiontype=OPTIONAL"`
	TimeWeight       *float64 `parquet:"name=time_weight, type=DOUBLE, repetitiontype=OPTIONAL"`
	RollPressure     *float64 `parquet:"name=roll_pressure, type=DOUBLE, repetitiontype=OPTIONAL"`
	Alert            bool     `parquet:"name=alert, type=BOOLEAN"`
	Valid            bool     `parquet:"name=valid, type=BOOLEAN"`
}

// memFile is a write-only in-memory parquet sink.
type memFile struct {
	buffer *bytes.Buffer
}

func newMemFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }

// WriteParquet writes rows as a single parquet file. compression is one of
// snappy, gzip or none.
func WriteParquet(w io.Writer, rows []rollpressure.DerivedRow, compression string) error {
	mem := newMemFile()
	pw, err := writer.NewParquetWriter(mem, new(parquetRecord), 1)
	if err != nil {
		return fmt.Errorf("new parquet writer: %w", err)
	}

	switch strings.ToLower(compression) {
	case "snappy", "":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, r := range rows {
		if err := pw.Write(toParquet(r)); err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet: %w", err)
	}

	_, err = w.Write(mem.buffer.Bytes())
	return err
}

func toParquet(r rollpressure.DerivedRow) parquetRecord {
	return parquetRecord{
		Date:             int32(r.Date.Unix() / 86400),
		Market:           r.Market,
		SpecNetLong:      optional(r.SpecNetLong),
		OpenInterest:     optional(r.OpenInterest),
		DaysToExpiry:     int32(r.DaysToExpiry),
		PositioningRatio: optional(r.PositioningRatio),
		PosScore:         optional(r.PosScore),
		TimeWeight:       optional(r.TimeWeight),
		RollPressure:     optional(r.RollPressure),
		Alert:            r.Alert,
		Valid:            r.Valid,
	}
}

func optional(v float64) *float64 {
	if !rollpressure.Defined(v) {
		return nil
	}
	return &v
}
