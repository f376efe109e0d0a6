// Package dataload reads recorded bars and premarket quotes from CSV files.
package dataload

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"warriorbot-go/internal/scanner"
	"warriorbot-go/internal/signal"
)

// ErrNotFound is returned when the CSV file does not exist.
var ErrNotFound = errors.New("data file not found")

// ParseError points at the offending row.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 15:04",
}

// Option tunes how bar files are read.
type Option func(*options)

type options struct {
	loc *time.Location
}

// WithLocation reads timestamps without a zone or offset as wall clock in loc.
// The default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

var barColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// LoadCSV reads bars with header timestamp,open,high,low,close,volume and an
// optional symbol column. Rows are returned sorted by time.
func LoadCSV(path string, opts ...Option) ([]signal.Bar, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bars, err := ReadBars(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// ReadBars parses bar CSV from r.
func ReadBars(r io.Reader, opts ...Option) ([]signal.Bar, error) {
	o := options{loc: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	rows, cols, err := readAll(r, barColumns)
	if err != nil {
		return nil, err
	}
	symCol, hasSymbol := cols["symbol"]

	bars := make([]signal.Bar, 0, len(rows))
	for _, rec := range rows {
		line, row := rec.line, rec.fields
		ts, err := parseTime(row[cols["timestamp"]], o.loc)
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		var vals [5]float64
		for j, name := range barColumns[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[cols[name]]), 64)
			if err != nil {
				return nil, &ParseError{Line: line, Err: fmt.Errorf("%s: %w", name, err)}
			}
			vals[j] = v
		}
		bar := signal.Bar{Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4], Ts: ts}
		if hasSymbol {
			bar.Symbol = strings.ToUpper(strings.TrimSpace(row[symCol]))
		}
		if bar.High < bar.Low {
			return nil, &ParseError{Line: line, Err: fmt.Errorf("high %.4f below low %.4f", bar.High, bar.Low)}
		}
		bars = append(bars, bar)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Ts.Before(bars[j].Ts) })
	return bars, nil
}

var quoteColumns = []string{"symbol", "price", "prev_close", "float", "volume", "avg_volume"}

// LoadQuotes reads premarket quotes with header
// symbol,price,prev_close,float,volume,avg_volume and an optional has_news column.
func LoadQuotes(path string) ([]scanner.Quote, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	quotes, err := ReadQuotes(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return quotes, nil
}

// ReadQuotes parses quote CSV from r.
func ReadQuotes(r io.Reader) ([]scanner.Quote, error) {
	rows, cols, err := readAll(r, quoteColumns)
	if err != nil {
		return nil, err
	}
	newsCol, hasNews := cols["has_news"]

	quotes := make([]scanner.Quote, 0, len(rows))
	for _, rec := range rows {
		line, row := rec.line, rec.fields
		var vals [5]float64
		for j, name := range quoteColumns[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[cols[name]]), 64)
			if err != nil {
				return nil, &ParseError{Line: line, Err: fmt.Errorf("%s: %w", name, err)}
			}
			vals[j] = v
		}
		q := scanner.Quote{
			Symbol:    strings.ToUpper(strings.TrimSpace(row[cols["symbol"]])),
			Price:     vals[0],
			PrevClose: vals[1],
			Float:     vals[2],
			Volume:    vals[3],
			AvgVolume: vals[4],
		}
		if hasNews {
			raw := strings.TrimSpace(row[newsCol])
			if raw != "" {
				news, err := strconv.ParseBool(raw)
				if err != nil {
					return nil, &ParseError{Line: line, Err: fmt.Errorf("has_news: %w", err)}
				}
				q.HasNews = news
			}
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// readAll returns data rows and the header's column positions, requiring every name in required.
func readAll(r io.Reader, required []string) ([]record, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, errors.New("empty file")
	}
	if err != nil {
		return nil, nil, &ParseError{Line: 1, Err: err}
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, &ParseError{Line: 1, Err: fmt.Errorf("missing column %q", name)}
		}
	}

	var rows []record
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, nil, &ParseError{Line: perr.Line, Err: perr.Err}
			}
			return nil, nil, err
		}
		line, _ := reader.FieldPos(0)
		if len(fields) != len(header) {
			return nil, nil, &ParseError{Line: line, Err: fmt.Errorf("expected %d fields, got %d", len(header), len(fields))}
		}
		rows = append(rows, record{line: line, fields: fields})
	}
	return rows, cols, nil
}

type record struct {
	line   int
	fields []string
}

func parseTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}
