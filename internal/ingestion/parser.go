package ingestion

import (
	"bufio"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Columns of one export row: blockHeight;timestamp;type;rawData;operationData
const (
	colBlockHeight = iota
	colTimestamp
	colType
	colRawData
	colOperationData
	minColumns = colOperationData + 1
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
}

// Parser decodes semicolon-delimited export files row at a time. Files are
// UTF-8 or, for legacy exports, windows-1251; the whole file is never
// buffered in memory.
type Parser struct {
	logger *logger.Logger
}

func NewParser(log *logger.Logger) *Parser {
	return &Parser{logger: log}
}

// Parse prepares a streaming iterator over the file's rows. It fails with
// a transaction extraction error only when the stream itself cannot be
// decoded; malformed rows are skipped and counted by the iterator.
func (p *Parser) Parse(filename string, r io.Reader) (*RowIterator, error) {
	decoded, err := decodeCharset(r)
	if err != nil {
		return nil, domain.ExtractionError(filename, err)
	}

	cr := csv.NewReader(decoded)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	return &RowIterator{
		filename: filename,
		reader:   cr,
		logger:   p.logger,
	}, nil
}

// RowIterator yields parsed rows lazily. After Next returns false the
// caller must check Err; Skipped reports malformed rows that were dropped.
type RowIterator struct {
	filename string
	reader   *csv.Reader
	logger   *logger.Logger
	line     int
	skipped  int
	err      error
}

func (it *RowIterator) Next() (domain.RawTransaction, bool) {
	for {
		record, err := it.reader.Read()
		if err == io.EOF {
			return domain.RawTransaction{}, false
		}
		it.line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				it.skipped++
				it.logger.Debugw("Skipping unparseable row",
					"file", it.filename, "line", it.line, "error", err)
				continue
			}
			it.err = domain.ExtractionError(it.filename, err)
			return domain.RawTransaction{}, false
		}

		// A header row is tolerated in first position.
		if it.line == 1 && len(record) > 0 {
			if _, convErr := strconv.ParseInt(strings.TrimSpace(record[colBlockHeight]), 10, 64); convErr != nil {
				continue
			}
		}

		row, rowErr := parseRow(record)
		if rowErr != nil {
			it.skipped++
			it.logger.Debugw("Skipping malformed row",
				"file", it.filename, "line", it.line, "error", rowErr)
			continue
		}
		return row, true
	}
}

func (it *RowIterator) Err() error { return it.err }

func (it *RowIterator) Skipped() int { return it.skipped }

func parseRow(record []string) (domain.RawTransaction, error) {
	var row domain.RawTransaction

	if len(record) < minColumns {
		return row, fmt.Errorf("expected at least %d fields, got %d", minColumns, len(record))
	}

	height, err := strconv.ParseInt(strings.TrimSpace(record[colBlockHeight]), 10, 64)
	if err != nil {
		return row, fmt.Errorf("invalid block height %q", record[colBlockHeight])
	}
	row.BlockHeight = height

	ts, err := parseTimestamp(strings.TrimSpace(record[colTimestamp]))
	if err != nil {
		return row, err
	}
	row.Timestamp = ts

	row.Type = domain.TransactionType(strings.TrimSpace(record[colType]))
	if row.Type == "" {
		return row, errors.New("empty transaction type")
	}

	row.RawData, err = parseNested(record[colRawData])
	if err != nil {
		return row, fmt.Errorf("raw data: %w", err)
	}
	row.OperationData, err = parseNested(record[colOperationData])
	if err != nil {
		return row, fmt.Errorf("operation data: %w", err)
	}

	row.TxID = deriveTxID(row)
	return row, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// deriveTxID prefers an explicit identifier carried in the raw payload and
// otherwise hashes the row content, so re-uploads of the same export
// always produce the same id for duplicate detection.
func deriveTxID(row domain.RawTransaction) string {
	for _, key := range []string{"signature", "txHash", "hash", "id"} {
		if v, ok := row.RawData.String(key); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s",
		row.BlockHeight, row.Timestamp.Format(time.RFC3339Nano), row.Type)))
	return hex.EncodeToString(sum[:16])
}

var bareKeyPattern = regexp.MustCompile(`([{\[,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)

// parseNested decodes the JSON-like nested payloads the chain exporter
// emits: single-quoted strings, bare keys and Python literals are
// tolerated. List-of-{key,value} structures are flattened into mappings
// keyed by each sub-record's key field, since downstream consumers need
// mapping semantics.
func parseNested(field string) (domain.DataMap, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return domain.DataMap{}, nil
	}

	strict := normalizeLoose(field)

	var value any
	if err := json.Unmarshal([]byte(strict), &value); err != nil {
		return nil, fmt.Errorf("unparseable structure: %w", err)
	}

	switch v := normalizeValue(value).(type) {
	case domain.DataMap:
		return v, nil
	case map[string]any:
		return domain.DataMap(v), nil
	default:
		// Scalar or unkeyed list: keep it addressable under a single key.
		return domain.DataMap{"value": v}, nil
	}
}

// normalizeLoose rewrites the exporter's loose syntax into strict JSON.
func normalizeLoose(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inSingle, inDouble := false, false
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inSingle:
			if c == '\\' && i+1 < len(runes) {
				next := runes[i+1]
				if next == '\'' {
					b.WriteRune('\'')
				} else {
					b.WriteRune(c)
					b.WriteRune(next)
				}
				i++
				continue
			}
			if c == '\'' {
				b.WriteRune('"')
				inSingle = false
				continue
			}
			if c == '"' {
				b.WriteString(`\"`)
				continue
			}
			b.WriteRune(c)
		case inDouble:
			if c == '\\' && i+1 < len(runes) {
				b.WriteRune(c)
				b.WriteRune(runes[i+1])
				i++
				continue
			}
			if c == '"' {
				inDouble = false
			}
			b.WriteRune(c)
		case c == '\'':
			inSingle = true
			b.WriteRune('"')
		case c == '"':
			inDouble = true
			b.WriteRune(c)
		default:
			b.WriteRune(c)
		}
	}

	out := bareKeyPattern.ReplaceAllString(b.String(), `$1"$2":`)
	out = strings.NewReplacer("True", "true", "False", "false", "None", "null").Replace(out)
	return out
}

// normalizeValue turns list-of-dict structures into key-indexed mappings,
// recursively. A list element without a key field keeps its index as key.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []any:
		if len(val) == 0 {
			return val
		}
		m := domain.DataMap{}
		for i, item := range val {
			entry, ok := item.(map[string]any)
			if !ok {
				return val
			}
			key, hasKey := entry["key"].(string)
			if !hasKey || key == "" {
				key = strconv.Itoa(i)
			}
			if inner, hasValue := entry["value"]; hasValue {
				m[key] = normalizeValue(inner)
			} else {
				rest := domain.DataMap{}
				for k, ev := range entry {
					if k != "key" {
						rest[k] = normalizeValue(ev)
					}
				}
				m[key] = rest
			}
		}
		return m
	case map[string]any:
		m := domain.DataMap{}
		for k, ev := range val {
			m[k] = normalizeValue(ev)
		}
		return m
	default:
		return v
	}
}

// decodeCharset sniffs a prefix of the stream; when it is not valid UTF-8
// the legacy windows-1251 decoder is applied. The sniffed bytes are not
// consumed, so the returned reader still streams.
func decodeCharset(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	prefix, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}

	if looksLikeUTF8(prefix) {
		return br, nil
	}
	return transform.NewReader(br, charmap.Windows1251.NewDecoder()), nil
}

func looksLikeUTF8(b []byte) bool {
	// Trailing bytes can cut a multibyte rune; drop up to 3 of them.
	for i := 0; i < 3 && len(b) > 0 && !utf8.Valid(b); i++ {
		b = b[:len(b)-1]
	}
	return utf8.Valid(b)
}
