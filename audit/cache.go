package audit

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketReveals  = []byte("reveals")
	bucketVerdicts = []byte("verdicts")
)

// Cache persists fetched finalization records and verdicts between runs.
// Entries are scoped by application id so one file can serve several
// deployments.
type Cache struct {
	db *bolt.DB
}

// OpenCache opens (and migrates) the bolt file at path.
func OpenCache(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketReveals, bucketVerdicts} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close releases the bolt handle.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func cycleKey(appID, cycle uint64) []byte {
	var key [16]byte
	binary.BigEndian.PutUint64(key[:8], appID)
	binary.BigEndian.PutUint64(key[8:], cycle)
	return key[:]
}

func (c *Cache) put(bucket []byte, appID, cycle uint64, value any) error {
	if c == nil {
		return errors.New("audit: nil cache")
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(cycleKey(appID, cycle), encoded)
	})
}

func (c *Cache) get(bucket []byte, appID, cycle uint64, out any) (bool, error) {
	if c == nil {
		return false, errors.New("audit: nil cache")
	}
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucket).Get(cycleKey(appID, cycle))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, out)
	})
	return found, err
}

// PutReveal stores the finalization record of its cycle for appID.
func (c *Cache) PutReveal(appID uint64, r Reveal) error {
	return c.put(bucketReveals, appID, r.Cycle, r)
}

// Reveal returns the cached finalization record of cycle for appID.
func (c *Cache) Reveal(appID, cycle uint64) (Reveal, bool, error) {
	var r Reveal
	ok, err := c.get(bucketReveals, appID, cycle, &r)
	return r, ok, err
}

// PutVerdict stores v, replacing any earlier verdict for the cycle of appID.
func (c *Cache) PutVerdict(appID uint64, v *Verdict) error {
	if v == nil {
		return errors.New("audit: nil verdict")
	}
	return c.put(bucketVerdicts, appID, v.Cycle, v)
}

// Verdict returns the cached verdict of cycle for appID.
func (c *Cache) Verdict(appID, cycle uint64) (*Verdict, bool, error) {
	var v Verdict
	ok, err := c.get(bucketVerdicts, appID, cycle, &v)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &v, true, nil
}
