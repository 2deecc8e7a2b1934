package resolver

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	bolt "go.etcd.io/bbolt"
)

var resolvedBucket = []byte("resolved")

// IndexEntry records where and as what a coordinate was resolved
type IndexEntry struct {
	Coordinate string
	Repository string
	Location   string
	File       string
	Sha256     string
	Resolved   time.Time
}

// Index is a persistent record of previously resolved artifacts
type Index struct {
	db *bolt.DB
}

// OpenIndex opens (or creates) the index database at the given path
func OpenIndex(dbPath string) (*Index, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open index %s", dbPath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(resolvedBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to initialize index")
	}

	return &Index{db: db}, nil
}

// Close releases the underlying database
func (i *Index) Close() error {
	return i.db.Close()
}

// Get returns the entry for the given coordinate. The bool is false if it was never resolved.
func (i *Index) Get(c Coordinate) (IndexEntry, bool, error) {
	var entry IndexEntry
	found := false

	err := i.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(resolvedBucket).Get([]byte(c.String()))
		if data == nil {
			return nil
		}

		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return entry, false, eris.Wrapf(err, "failed to read index entry for %s", c)
	}

	return entry, found, nil
}

// Put stores the entry under its coordinate
func (i *Index) Put(entry IndexEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "failed to encode index entry")
	}

	err = i.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(resolvedBucket).Put([]byte(entry.Coordinate), data)
	})
	if err != nil {
		return eris.Wrapf(err, "failed to store index entry for %s", entry.Coordinate)
	}
	return nil
}

// Delete removes the entry for the given coordinate
func (i *Index) Delete(c Coordinate) error {
	err := i.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(resolvedBucket).Delete([]byte(c.String()))
	})
	if err != nil {
		return eris.Wrapf(err, "failed to delete index entry for %s", c)
	}
	return nil
}
