// Package tables maps named collections of JSON records onto a kv.Store.
//
// A record of table T with id I is stored as a string under "T:I", and every
// id ever written to T is kept in the set "T:index". Listing a table reads
// the set and fetches each record; ids whose record is gone are skipped.
package tables

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/SrJCBM/BDD-Avanzada/pkg/kv"
	"github.com/pkg/errors"
)

// Client-facing summaries.
const (
	msgMissingID   = `Record must have an "id" field`
	msgReserved    = "Table name is reserved"
	msgReservedID  = `The id "index" is reserved`
	msgInvalidBody = "Invalid JSON body"
	msgNotObject   = "Record must be a JSON object"
	msgNotFound    = "Record not found"
	msgSeedFailed  = "Error loading data"
	msgPutFailed   = "Error saving record"
	msgGetFailed   = "Error fetching record"
	msgListFailed  = "Error listing records"
)

// ReservedTables are names taken by the service's own endpoints. Writing to
// them would create a table that could never be read back.
var ReservedTables = map[string]bool{
	"_metrics": true,
	"_feed":    true,
}

// Event describes a change committed by the Service.
type Event struct {
	Action string   `json:"action"`
	Table  string   `json:"table,omitempty"`
	ID     string   `json:"id,omitempty"`
	Tables []string `json:"tables,omitempty"`
}

const (
	ActionPut  = "put"
	ActionSeed = "seed"
)

// Notifier receives an Event after each successful write.
type Notifier interface {
	Publish(Event)
}

// Service implements seed, put, get and list over a kv.Store.
// It holds no state of its own; concurrent calls coordinate only through
// the store's per-operation atomicity.
type Service struct {
	store    kv.Store
	seedFile string
	notifier Notifier
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier registers n to receive change events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithSeedFile sets the bulk-load document read by Seed.
func WithSeedFile(path string) Option {
	return func(s *Service) {
		s.seedFile = path
	}
}

// WithClock overrides the clock used to time Seed (useful in tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(store kv.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) publish(ev Event) {
	if s.notifier != nil {
		s.notifier.Publish(ev)
	}
}

// SeedResult summarizes a bulk load.
type SeedResult struct {
	Tables       []string
	TotalRecords int
	Elapsed      time.Duration
}

// Seed replaces every table named in the seed file with the file's records.
// Tables are processed in document order. The load is not atomic: a failure
// leaves earlier tables replaced and later ones untouched.
func (s *Service) Seed(ctx context.Context) (*SeedResult, error) {
	start := s.now()

	if s.seedFile == "" {
		return nil, internalError(msgSeedFailed, errors.New("no seed file configured"))
	}
	data, err := os.ReadFile(s.seedFile)
	if err != nil {
		return nil, internalError(msgSeedFailed, errors.Wrapf(err, "could not read seed file"))
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, internalError(msgSeedFailed, err)
	}

	res, err := s.SeedDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	res.Elapsed = s.now().Sub(start)
	return res, nil
}

// SeedDocument loads an already parsed document.
func (s *Service) SeedDocument(ctx context.Context, doc Document) (*SeedResult, error) {
	start := s.now()
	res := &SeedResult{Tables: make([]string, 0, len(doc))}

	for _, t := range doc {
		keys, err := s.store.Keys(ctx, tablePattern(t.Name))
		if err != nil {
			return nil, internalError(msgSeedFailed, errors.Wrapf(err, "could not list keys of table %s", t.Name))
		}
		keys = append(keys, IndexKey(t.Name))
		if err := s.store.Delete(ctx, keys...); err != nil {
			return nil, internalError(msgSeedFailed, errors.Wrapf(err, "could not purge table %s", t.Name))
		}

		for _, rec := range t.Records {
			if err := s.write(ctx, t.Name, rec); err != nil {
				return nil, internalError(msgSeedFailed, err)
			}
			res.TotalRecords++
		}
		res.Tables = append(res.Tables, t.Name)
	}

	res.Elapsed = s.now().Sub(start)
	s.publish(Event{Action: ActionSeed, Tables: res.Tables})
	return res, nil
}

func (s *Service) write(ctx context.Context, table string, rec Record) error {
	id := rec.ID()
	if err := s.store.Set(ctx, RecordKey(table, id), rec.String()); err != nil {
		return errors.Wrapf(err, "could not store %s", RecordKey(table, id))
	}
	if err := s.store.SAdd(ctx, IndexKey(table), id); err != nil {
		return errors.Wrapf(err, "could not index %s", RecordKey(table, id))
	}
	return nil
}

// PutResult echoes a stored record.
type PutResult struct {
	Table  string
	ID     json.RawMessage
	Record Record
}

// Put creates or replaces one record. body must be a JSON object with an
// id; otherwise a KindInvalid error is returned and the store is untouched.
func (s *Service) Put(ctx context.Context, table string, body []byte) (*PutResult, error) {
	if ReservedTables[table] {
		return nil, &Error{Kind: KindInvalid, Summary: msgReserved, Table: table}
	}
	rec, err := ParseRecord(body)
	if err != nil {
		return nil, invalidRecord(table, err)
	}

	if err := s.write(ctx, table, rec); err != nil {
		return nil, internalError(msgPutFailed, err)
	}

	s.publish(Event{Action: ActionPut, Table: table, ID: rec.ID()})
	return &PutResult{Table: table, ID: rec.RawID(), Record: rec}, nil
}

func invalidRecord(table string, err error) *Error {
	e := &Error{Kind: KindInvalid, Table: table}
	switch errors.Cause(err) {
	case ErrMissingID:
		e.Summary = msgMissingID
	case ErrReservedID:
		e.Summary = msgReservedID
	case ErrNotObject:
		e.Summary = msgNotObject
	default:
		e.Summary = msgInvalidBody
		e.Err = err
	}
	return e
}

// Get fetches one record. The index is not consulted.
func (s *Service) Get(ctx context.Context, table, id string) (Record, error) {
	notFound := &Error{Kind: KindNotFound, Summary: msgNotFound, Table: table, ID: id}
	if id == indexMarker {
		return Record{}, notFound
	}

	val, ok, err := s.store.Get(ctx, RecordKey(table, id))
	if err != nil {
		return Record{}, internalError(msgGetFailed, errors.Wrapf(err, "could not read %s", RecordKey(table, id)))
	}
	if !ok {
		return Record{}, notFound
	}

	rec, err := decodeStored(val)
	if err != nil {
		return Record{}, internalError(msgGetFailed, errors.Wrapf(err, "corrupt value at %s", RecordKey(table, id)))
	}
	return rec, nil
}

// List returns every record of a table in the store's set order. An empty
// or unknown table yields an empty slice.
func (s *Service) List(ctx context.Context, table string) ([]Record, error) {
	ids, err := s.store.SMembers(ctx, IndexKey(table))
	if err != nil {
		return nil, internalError(msgListFailed, errors.Wrapf(err, "could not read index of %s", table))
	}

	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		val, ok, err := s.store.Get(ctx, RecordKey(table, id))
		if err != nil {
			return nil, internalError(msgListFailed, errors.Wrapf(err, "could not read %s", RecordKey(table, id)))
		}
		if !ok {
			// Indexed but not stored: skipped, not reported.
			continue
		}
		rec, err := decodeStored(val)
		if err != nil {
			return nil, internalError(msgListFailed, errors.Wrapf(err, "corrupt value at %s", RecordKey(table, id)))
		}
		records = append(records, rec)
	}
	return records, nil
}
