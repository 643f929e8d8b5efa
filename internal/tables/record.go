package tables

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const (
	keySep      = ":"
	indexMarker = "index"
)

var (
	ErrInvalidJSON = errors.New("value is not valid JSON")
	ErrNotObject   = errors.New("record is not a JSON object")
	ErrMissingID   = errors.New(`record has no "id" field`)
	ErrReservedID  = errors.New(`id "index" is reserved`)
)

// RecordKey is the storage key of a record.
func RecordKey(table, id string) string {
	return table + keySep + id
}

// IndexKey is the key of the set holding every id of a table.
func IndexKey(table string) string {
	return table + keySep + indexMarker
}

func tablePattern(table string) string {
	return table + keySep + "*"
}

// Record is an opaque JSON object. It keeps the exact bytes it was built
// from (compacted), so attribute order survives a round trip through the
// store.
type Record struct {
	raw json.RawMessage
	id  gjson.Result
}

// ParseRecord validates data as a JSON object carrying a usable id.
// An id must be a non-empty string or a non-zero number.
func ParseRecord(data []byte) (Record, error) {
	r, err := decodeObject(data)
	if err != nil {
		return Record{}, err
	}
	if !validID(r.id) {
		return Record{}, ErrMissingID
	}
	if r.ID() == indexMarker {
		return Record{}, ErrReservedID
	}
	return r, nil
}

// decodeStored parses a value read back from the store. Stored records
// always passed ParseRecord, so only JSON validity is checked.
func decodeStored(data string) (Record, error) {
	return decodeObject([]byte(data))
}

func decodeObject(data []byte) (Record, error) {
	if !gjson.ValidBytes(data) {
		return Record{}, ErrInvalidJSON
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return Record{}, errors.Wrap(ErrInvalidJSON, err.Error())
	}
	raw := buf.Bytes()
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return Record{}, ErrNotObject
	}
	return Record{raw: raw, id: lastID(parsed)}, nil
}

// lastID returns the value of the last "id" member. Decoders that accept
// duplicate keys keep the last one, so the key must agree with them.
func lastID(obj gjson.Result) gjson.Result {
	var id gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == "id" {
			id = v
		}
		return true
	})
	return id
}

func validID(id gjson.Result) bool {
	switch id.Type {
	case gjson.String:
		return id.Str != ""
	case gjson.Number:
		return id.Num != 0
	}
	return false
}

// ID returns the id as used in storage keys: a string id verbatim, a
// number id in its shortest decimal form, so 1.0 and 1e2 key as "1" and "100".
func (r Record) ID() string {
	if r.id.Type == gjson.String {
		return r.id.Str
	}
	return strconv.FormatFloat(r.id.Num, 'f', -1, 64)
}

// RawID returns the id as it appears in the record.
func (r Record) RawID() json.RawMessage {
	return json.RawMessage(r.id.Raw)
}

// Bytes returns the compact JSON encoding of the record.
func (r Record) Bytes() []byte {
	return r.raw
}

// String returns the compact JSON encoding of the record.
func (r Record) String() string {
	return string(r.raw)
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.raw == nil {
		return []byte("null"), nil
	}
	return r.raw, nil
}
