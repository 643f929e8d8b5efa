package store

import (
	"context"
	"encoding/binary"
	"os"
	"sort"
	"time"

	"github.com/SrJCBM/BDD-Avanzada/pkg/kv"
	"github.com/pkg/errors"
	"github.com/tidwall/match"
	"go.etcd.io/bbolt"
)

var (
	valuesBucket = []byte("values")
	setsBucket   = []byte("sets")
)

// BoltStore persists values and sets in a single bbolt file.
// Values live in the "values" bucket; each set is a nested bucket under
// "sets" whose keys are the members.
type BoltStore struct {
	Db     *bbolt.DB
	DbFile string
}

var _ kv.Store = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the database file and its buckets.
func NewBoltStore(file string, mode os.FileMode) (*BoltStore, error) {
	db, err := bbolt.Open(file, mode, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "could not open bolt file %s", file)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(valuesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(setsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "could not create buckets")
	}

	return &BoltStore{Db: db, DbFile: file}, nil
}

func (b *BoltStore) Get(_ context.Context, key string) (v string, ok bool, err error) {
	err = b.Db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(valuesBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		v, ok = string(raw), true
		return nil
	})
	return
}

func (b *BoltStore) Set(_ context.Context, key, value string) error {
	return b.Db.Update(func(tx *bbolt.Tx) error {
		if err := deleteSet(tx, key); err != nil {
			return err
		}
		return tx.Bucket(valuesBucket).Put([]byte(key), []byte(value))
	})
}

func (b *BoltStore) Delete(_ context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.Db.Update(func(tx *bbolt.Tx) error {
		values := tx.Bucket(valuesBucket)
		for _, key := range keys {
			if err := values.Delete([]byte(key)); err != nil {
				return err
			}
			if err := deleteSet(tx, key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltStore) Keys(_ context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0)
	err := b.Db.View(func(tx *bbolt.Tx) error {
		collect := func(k, _ []byte) error {
			if match.Match(string(k), pattern) {
				keys = append(keys, string(k))
			}
			return nil
		}
		if err := tx.Bucket(valuesBucket).ForEach(collect); err != nil {
			return err
		}
		return tx.Bucket(setsBucket).ForEach(collect)
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *BoltStore) SAdd(_ context.Context, key string, members ...string) error {
	return b.Db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(valuesBucket).Delete([]byte(key)); err != nil {
			return err
		}
		set, err := tx.Bucket(setsBucket).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		for _, m := range members {
			if set.Get([]byte(m)) != nil {
				continue
			}
			// The value records insertion order so SMembers can replay it.
			seq, err := set.NextSequence()
			if err != nil {
				return err
			}
			if err := set.Put([]byte(m), itob(seq)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltStore) SMembers(_ context.Context, key string) ([]string, error) {
	type member struct {
		name string
		seq  uint64
	}
	var ms []member
	err := b.Db.View(func(tx *bbolt.Tx) error {
		set := tx.Bucket(setsBucket).Bucket([]byte(key))
		if set == nil {
			return nil
		}
		return set.ForEach(func(k, v []byte) error {
			ms = append(ms, member{name: string(k), seq: btoi(v)})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(ms, func(i, j int) bool { return ms[i].seq < ms[j].seq })
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.name
	}
	return out, nil
}

func (b *BoltStore) Close() error {
	return b.Db.Close()
}

func deleteSet(tx *bbolt.Tx, key string) error {
	sets := tx.Bucket(setsBucket)
	if sets.Bucket([]byte(key)) == nil {
		return nil
	}
	return sets.DeleteBucket([]byte(key))
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
