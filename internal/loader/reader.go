package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// Delimiter separates fields in a reference data file.
	Delimiter = '^'
	// Quote encloses fields that contain delimiters or line breaks. A doubled
	// quote inside a quoted field stands for one literal quote.
	Quote = '\''
)

var (
	ErrUnterminatedQuote = errors.New("unterminated quoted field")
	ErrFieldCount        = errors.New("wrong number of fields")
)

// ParseError locates a malformed record.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// Reader streams records from a caret-delimited, single-quote-quoted file.
// Blank lines are skipped; carriage returns outside quotes are dropped.
type Reader struct {
	// FieldsPerRecord, when positive, is the exact field count every record
	// must have.
	FieldsPerRecord int

	br      *bufio.Reader
	line    int
	records int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024), line: 1}
}

// Records returns how many records have been read so far.
func (r *Reader) Records() int { return r.records }

// Read returns the next record, or io.EOF at end of input.
func (r *Reader) Read() ([]string, error) {
	for {
		start := r.line
		rec, err := r.readRecord()
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		if r.FieldsPerRecord > 0 && len(rec) != r.FieldsPerRecord {
			return nil, &ParseError{Line: start, Err: fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(rec), r.FieldsPerRecord)}
		}
		r.records++
		return rec, nil
	}
}

// Next implements persistence.RowSource.
func (r *Reader) Next() ([]any, error) {
	rec, err := r.Read()
	if err != nil {
		return nil, err
	}
	row := make([]any, len(rec))
	for i, f := range rec {
		row[i] = f
	}
	return row, nil
}

// readRecord returns nil, nil for a blank line.
func (r *Reader) readRecord() ([]string, error) {
	var (
		fields     []string
		field      strings.Builder
		inQuote    bool
		quoted     bool
		fieldStart = true
		start      = r.line
	)
	empty := func() bool { return len(fields) == 0 && field.Len() == 0 && !quoted }
	for {
		c, _, err := r.br.ReadRune()
		if errors.Is(err, io.EOF) {
			if inQuote {
				return nil, &ParseError{Line: start, Err: ErrUnterminatedQuote}
			}
			if empty() {
				return nil, io.EOF
			}
			return append(fields, field.String()), nil
		}
		if err != nil {
			return nil, err
		}
		if inQuote {
			if c == Quote {
				next, _, err := r.br.ReadRune()
				if err == nil && next == Quote {
					field.WriteRune(Quote)
					continue
				}
				if err == nil {
					_ = r.br.UnreadRune()
				}
				inQuote = false
				continue
			}
			if c == '\n' {
				r.line++
			}
			field.WriteRune(c)
			continue
		}
		switch {
		case c == Delimiter:
			fields = append(fields, field.String())
			field.Reset()
			fieldStart = true
			continue
		case c == '\n':
			r.line++
			if empty() {
				return nil, nil
			}
			return append(fields, field.String()), nil
		case c == '\r':
		case c == Quote && fieldStart:
			inQuote, quoted = true, true
		default:
			field.WriteRune(c)
		}
		fieldStart = false
	}
}
