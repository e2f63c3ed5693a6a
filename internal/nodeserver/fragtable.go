package nodeserver

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	fragmentsBucket = "fragments"
	accessBucket    = "access"
	counterBucket   = "counters"

	usedSpaceKey = "used_space"
)

// fragmentRecord is the persisted metadata for one stored fragment,
// mirroring spec.md §4.9's "map fragment_id -> {path, size, checksum,
// metadata, stored_at, access_count}".
type fragmentRecord struct {
	FragmentID      string    `json:"fragment_id"`
	Path            string    `json:"path"`
	Size            int64     `json:"size"`
	Checksum        string    `json:"checksum"` // hex sha256 of ciphertext
	Fingerprint     uint64    `json:"fingerprint"`
	FileHash        string    `json:"file_hash"`
	PartitionIndex  int       `json:"partition_index"`
	RedundancyIndex int       `json:"redundancy_index"`
	StoredAt        time.Time `json:"stored_at"`
	AccessCount     int64     `json:"access_count"`
}

func ensureBuckets(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		for _, b := range []string{fragmentsBucket, accessBucket, counterBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	})
}

func putFragmentRecord(db *bolt.DB, rec fragmentRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(fragmentsBucket)).Put([]byte(rec.FragmentID), raw)
	})
}

func getFragmentRecord(db *bolt.DB, fragmentID string) (fragmentRecord, bool, error) {
	var rec fragmentRecord
	found := false
	err := db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(fragmentsBucket)).Get([]byte(fragmentID))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &rec)
	})
	return rec, found, err
}

func allFragmentRecords(db *bolt.DB) ([]fragmentRecord, error) {
	var out []fragmentRecord
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(fragmentsBucket)).ForEach(func(k, v []byte) error {
			var rec fragmentRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // skip corrupt metadata entries, not fatal to the sweep
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

func fragmentCount(db *bolt.DB) (int, error) {
	n := 0
	err := db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(fragmentsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

func loadUsedSpace(db *bolt.DB) (int64, error) {
	var used int64
	err := db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(counterBucket)).Get([]byte(usedSpaceKey))
		if raw == nil {
			return nil
		}
		used = int64(binary.BigEndian.Uint64(raw))
		return nil
	})
	return used, err
}

func storeUsedSpace(db *bolt.DB, used int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(used))
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(counterBucket)).Put([]byte(usedSpaceKey), buf)
	})
}
