package table

import "sort"

// Row is one keyed cell.
type Row struct {
	Key   string
	Value Value
}

// Table is an ordered mapping from key to value. Keys are unique: when a key
// repeats, the later value replaces the earlier one and the row keeps its
// first position.
type Table struct {
	rows       []Row
	index      map[string]int
	duplicates int
}

// New creates an empty table.
func New() *Table {
	return &Table{index: make(map[string]int)}
}

// Set stores v under key (last write wins). It reports whether key was
// already present.
func (t *Table) Set(key string, v Value) bool {
	if i, ok := t.index[key]; ok {
		t.rows[i].Value = v
		t.duplicates++
		return true
	}
	t.index[key] = len(t.rows)
	t.rows = append(t.rows, Row{Key: key, Value: v})
	return false
}

// Get returns the value stored under key.
func (t *Table) Get(key string) (Value, bool) {
	i, ok := t.index[key]
	if !ok {
		return Value{}, false
	}
	return t.rows[i].Value, true
}

// Len returns the number of distinct keys.
func (t *Table) Len() int { return len(t.rows) }

// Duplicates returns how many Set calls overwrote an existing key.
func (t *Table) Duplicates() int { return t.duplicates }

// Rows returns the rows in insertion order.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Keys returns the keys sorted lexically.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.rows))
	for _, r := range t.rows {
		keys = append(keys, r.Key)
	}
	sort.Strings(keys)
	return keys
}
