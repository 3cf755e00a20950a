package procurement

import (
	"encoding/json"
	"sort"

	"procuro/internal/database"
)

// Ledger records when each named status transition first occurred for a
// document, e.g. "pending_at" -> "2026-01-15 08:30:00". Keys are only
// ever added; recording an existing key preserves the original value.
type Ledger map[string]string

// ParseLedger decodes a ledger from its stored JSON form. Malformed or
// empty input yields an empty ledger rather than an error: a document
// must never become unreadable because of its timestamp history.
func ParseLedger(raw string) Ledger {
	l := Ledger{}
	if raw == "" {
		return l
	}
	_ = json.Unmarshal([]byte(raw), &l)
	return l
}

// Record returns a new ledger with key set to ts. An already-present key
// keeps its prior value. The receiver is not modified.
func (l Ledger) Record(key, ts string) Ledger {
	out := make(Ledger, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	if _, ok := out[key]; !ok {
		out[key] = ts
	}
	return out
}

// RecordNow records key at the current time.
func (l Ledger) RecordNow(key string) Ledger {
	return l.Record(key, database.Now())
}

// String encodes the ledger to its stored JSON form.
func (l Ledger) String() string {
	if len(l) == 0 {
		return "{}"
	}
	data, err := json.Marshal(l)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Keys returns the recorded transition names in sorted order.
func (l Ledger) Keys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
