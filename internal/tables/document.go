package tables

import (
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var ErrMalformedDocument = errors.New("malformed seed document")

// Table is one entry of a seed document.
type Table struct {
	Name    string
	Records []Record
}

// Document is a parsed seed document, in the order tables appear in the file.
type Document []Table

// ParseDocument parses a JSON object mapping table names to arrays of
// records. Every record is validated up front, so a bad document is
// rejected before anything is written.
func ParseDocument(data []byte) (Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.Wrap(ErrMalformedDocument, "not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, errors.Wrap(ErrMalformedDocument, "top level is not an object")
	}

	doc := make(Document, 0)
	var perr error
	root.ForEach(func(name, value gjson.Result) bool {
		if !value.IsArray() {
			perr = errors.Wrapf(ErrMalformedDocument, "table %q is not an array", name.String())
			return false
		}
		t := Table{Name: name.String(), Records: make([]Record, 0)}
		value.ForEach(func(i, item gjson.Result) bool {
			rec, err := ParseRecord([]byte(item.Raw))
			if err != nil {
				perr = errors.Wrapf(ErrMalformedDocument, "table %q record %d: %v", t.Name, len(t.Records), err)
				return false
			}
			t.Records = append(t.Records, rec)
			return true
		})
		if perr != nil {
			return false
		}
		doc = append(doc, t)
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return doc, nil
}
