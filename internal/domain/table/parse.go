package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/okian/scorer/internal/apperr"
)

// Format is the declared or detected file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

const defaultMaxBytes = 100 << 20

var (
	// valueColumns are the canonical value column names in priority order.
	valueColumns = []string{"value", "label", "prediction"}
	gzipMagic    = []byte{0x1f, 0x8b}
	utf8BOM      = []byte{0xef, 0xbb, 0xbf}
)

// Option configures Parse.
type Option func(*parser)

// WithMaxBytes bounds the decompressed size of gzip input.
func WithMaxBytes(n int64) Option {
	return func(p *parser) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// WithFormat forces a format instead of detecting it from the ref.
func WithFormat(f Format) Option {
	return func(p *parser) {
		p.format = f
	}
}

type parser struct {
	maxBytes int64
	format   Format
}

// Parse decodes data fetched from ref. The format comes from the ref
// extension (.csv, .json, optionally followed by .gz); unknown extensions
// are sniffed from the content. Gzip content is decompressed first.
func Parse(ref string, data []byte, opts ...Option) (*Table, error) {
	p := &parser{maxBytes: defaultMaxBytes}
	for _, opt := range opts {
		opt(p)
	}

	raw, err := p.decompress(data)
	if err != nil {
		return nil, err
	}

	format := p.format
	if format == "" {
		format = DetectFormat(ref, raw)
	}
	switch format {
	case FormatJSON:
		return ParseJSON(bytes.NewReader(raw))
	case FormatCSV:
		return ParseCSV(bytes.NewReader(raw))
	default:
		return nil, apperr.New(apperr.KindParse, "parse", "unsupported format %q", format)
	}
}

func (p *parser) decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, gzipMagic) {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindParse, "parse.gzip", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, p.maxBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindParse, "parse.gzip", err)
	}
	if int64(len(out)) > p.maxBytes {
		return nil, apperr.New(apperr.KindParse, "parse.gzip", "decompressed content exceeds %d bytes", p.maxBytes)
	}
	return out, nil
}

// DetectFormat picks a format from the extension of ref (ignoring a URL
// query and a trailing .gz), falling back to sniffing data.
func DetectFormat(ref string, data []byte) Format {
	name := ref
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		name = u.Path
	}
	name = strings.ToLower(name)
	name = strings.TrimSuffix(name, ".gz")
	switch path.Ext(name) {
	case ".csv":
		return FormatCSV
	case ".json":
		return FormatJSON
	}

	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return FormatJSON
	}
	return FormatCSV
}

// ParseCSV reads a CSV file whose first row is a header. The key column is
// "id" (any case), or the first column when its name ends in "id" and more
// columns follow; without one the zero-based row index is the key. The value
// column is the first of value, label, prediction, or else the first non-key
// column.
func ParseCSV(r io.Reader) (*Table, error) {
	const op = "parse.csv"

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperr.New(apperr.KindParse, op, "empty file")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindParse, op, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], string(utf8BOM))
	}

	keyCol, valCol, err := csvColumns(header)
	if err != nil {
		return nil, err
	}

	t := New()
	for idx := 0; ; idx++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.KindParse, op, err)
		}
		key := strconv.Itoa(idx)
		if keyCol >= 0 {
			key = normalizeKey(rec[keyCol])
			if key == "" {
				line, _ := cr.FieldPos(keyCol)
				return nil, apperr.New(apperr.KindParse, op, "empty id on line %d", line)
			}
		}
		t.Set(key, Coerce(rec[valCol]))
	}

	if t.Len() == 0 {
		return nil, apperr.New(apperr.KindParse, op, "no data rows")
	}
	return t, nil
}

func csvColumns(header []string) (keyCol, valCol int, err error) {
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.ToLower(strings.TrimSpace(h))
	}

	keyCol = -1
	for i, n := range names {
		if n == "id" {
			keyCol = i
			break
		}
	}
	if keyCol < 0 && len(names) >= 2 && strings.HasSuffix(names[0], "id") {
		keyCol = 0
	}

	for _, want := range valueColumns {
		for i, n := range names {
			if n == want && i != keyCol {
				return keyCol, i, nil
			}
		}
	}
	for i := range names {
		if i != keyCol {
			return keyCol, i, nil
		}
	}
	return 0, 0, apperr.New(apperr.KindParse, "parse.csv", "no value column in header %q", strings.Join(header, ","))
}

// ParseJSON reads either an array of objects carrying id/value fields, a flat
// array of values keyed by index, or an object mapping keys to values.
func ParseJSON(r io.Reader) (*Table, error) {
	const op = "parse.json"

	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperr.New(apperr.KindParse, op, "empty file")
		}
		return nil, apperr.Wrap(apperr.KindParse, op, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, apperr.New(apperr.KindParse, op, "unexpected data after top-level value")
	}

	var (
		t   *Table
		err error
	)
	switch v := doc.(type) {
	case []any:
		t, err = parseJSONArray(v)
	case map[string]any:
		t, err = parseJSONObject(v)
	default:
		return nil, apperr.New(apperr.KindParse, op, "top-level value must be an array or object")
	}
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, apperr.New(apperr.KindParse, op, "no rows")
	}
	return t, nil
}

func parseJSONArray(items []any) (*Table, error) {
	const op = "parse.json"

	t := New()
	if len(items) == 0 {
		return t, nil
	}
	_, records := items[0].(map[string]any)
	keyed := false
	for i, item := range items {
		obj, isObj := item.(map[string]any)
		if isObj != records {
			return nil, apperr.New(apperr.KindParse, op, "element %d: mixed objects and plain values", i)
		}
		if !records {
			v, err := jsonValue(item)
			if err != nil {
				return nil, apperr.New(apperr.KindParse, op, "element %d: %v", i, err)
			}
			t.Set(strconv.Itoa(i), v)
			continue
		}

		idField, valField, err := recordFields(obj)
		if err != nil {
			return nil, apperr.New(apperr.KindParse, op, "element %d: %v", i, err)
		}
		if i == 0 {
			keyed = idField != ""
		} else if keyed != (idField != "") {
			return nil, apperr.New(apperr.KindParse, op, "element %d: id field present in some records only", i)
		}
		key := strconv.Itoa(i)
		if keyed {
			key, err = jsonKey(obj[idField])
			if err != nil {
				return nil, apperr.New(apperr.KindParse, op, "element %d: %v", i, err)
			}
		}
		v, err := jsonValue(obj[valField])
		if err != nil {
			return nil, apperr.New(apperr.KindParse, op, "element %d: %v", i, err)
		}
		t.Set(key, v)
	}
	return t, nil
}

// recordFields locates the id and value fields of a record. Field names are
// matched case-insensitively; the id field is optional.
func recordFields(obj map[string]any) (idField, valField string, err error) {
	lower := make(map[string]string, len(obj))
	for k := range obj {
		lower[strings.ToLower(strings.TrimSpace(k))] = k
	}
	idField = lower["id"]
	for _, want := range valueColumns {
		if k, ok := lower[want]; ok {
			return idField, k, nil
		}
	}

	var rest []string
	for k := range obj {
		if k != idField {
			rest = append(rest, k)
		}
	}
	switch len(rest) {
	case 0:
		return "", "", errors.New("no value field")
	case 1:
		return idField, rest[0], nil
	default:
		return "", "", fmt.Errorf("ambiguous value field among %d candidates", len(rest))
	}
}

func parseJSONObject(obj map[string]any) (*Table, error) {
	const op = "parse.json"

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	// Map iteration order is random; sort so normalized-key collisions resolve
	// the same way every time.
	sort.Strings(keys)

	t := New()
	for _, k := range keys {
		v, err := jsonValue(obj[k])
		if err != nil {
			return nil, apperr.New(apperr.KindParse, op, "key %q: %v", k, err)
		}
		key := normalizeKey(k)
		if key == "" {
			return nil, apperr.New(apperr.KindParse, op, "empty key")
		}
		t.Set(key, v)
	}
	return t, nil
}

func jsonValue(x any) (Value, error) {
	switch v := x.(type) {
	case json.Number:
		return Coerce(v.String()), nil
	case string:
		return Coerce(v), nil
	case bool:
		if v {
			return Num(1), nil
		}
		return Num(0), nil
	case nil:
		return Value{}, errors.New("null value")
	default:
		return Value{}, fmt.Errorf("unsupported value of type %T", x)
	}
}

func jsonKey(x any) (string, error) {
	var s string
	switch v := x.(type) {
	case json.Number:
		s = v.String()
	case string:
		s = v
	default:
		return "", fmt.Errorf("id must be a string or number, got %T", x)
	}
	key := normalizeKey(s)
	if key == "" {
		return "", errors.New("empty id")
	}
	return key, nil
}
