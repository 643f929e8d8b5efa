package tables

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	t.Run("number id in shortest decimal form", func(t *testing.T) {
		rec, err := ParseRecord([]byte(`{ "id": 1, "nombre": "A" }`))
		require.NoError(t, err)
		assert.Equal(t, "1", rec.ID())
		assert.Equal(t, json.RawMessage(`1`), rec.RawID())
		assert.Equal(t, `{"id":1,"nombre":"A"}`, rec.String())
	})

	t.Run("equal numbers share a key", func(t *testing.T) {
		for body, want := range map[string]string{
			`{"id":1.0}`:   "1",
			`{"id":1e2}`:   "100",
			`{"id":-2.50}`: "-2.5",
			`{"id":0.5}`:   "0.5",
		} {
			rec, err := ParseRecord([]byte(body))
			require.NoError(t, err, body)
			assert.Equal(t, want, rec.ID(), body)
		}
	})

	t.Run("last duplicate id wins", func(t *testing.T) {
		rec, err := ParseRecord([]byte(`{"id":1,"nombre":"A","id":2}`))
		require.NoError(t, err)
		assert.Equal(t, "2", rec.ID())
		assert.Equal(t, json.RawMessage(`2`), rec.RawID())

		_, err = ParseRecord([]byte(`{"id":1,"id":null}`))
		assert.ErrorIs(t, err, ErrMissingID)
	})

	t.Run("string id is used verbatim", func(t *testing.T) {
		rec, err := ParseRecord([]byte(`{"id":"abc-1","x":[1,2]}`))
		require.NoError(t, err)
		assert.Equal(t, "abc-1", rec.ID())
		assert.Equal(t, json.RawMessage(`"abc-1"`), rec.RawID())
	})

	t.Run("attribute order survives", func(t *testing.T) {
		rec, err := ParseRecord([]byte(`{"z":1,"id":2,"a":3}`))
		require.NoError(t, err)
		b, err := json.Marshal(rec)
		require.NoError(t, err)
		assert.Equal(t, `{"z":1,"id":2,"a":3}`, string(b))
	})

	cases := []struct {
		name string
		body string
		want error
	}{
		{"no id", `{"nombre":"X"}`, ErrMissingID},
		{"null id", `{"id":null}`, ErrMissingID},
		{"zero id", `{"id":0}`, ErrMissingID},
		{"empty id", `{"id":""}`, ErrMissingID},
		{"false id", `{"id":false}`, ErrMissingID},
		{"object id", `{"id":{"a":1}}`, ErrMissingID},
		{"reserved id", `{"id":"index"}`, ErrReservedID},
		{"array body", `[{"id":1}]`, ErrNotObject},
		{"string body", `"hello"`, ErrNotObject},
		{"broken json", `{"id":1`, ErrInvalidJSON},
		{"empty body", ``, ErrInvalidJSON},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRecord([]byte(tc.body))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "clientes:1", RecordKey("clientes", "1"))
	assert.Equal(t, "clientes:index", IndexKey("clientes"))
	assert.Equal(t, "clientes:*", tablePattern("clientes"))
}

func TestRecord_ZeroValueMarshalsNull(t *testing.T) {
	b, err := json.Marshal(Record{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}
