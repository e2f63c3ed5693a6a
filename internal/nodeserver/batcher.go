// batcher.go is adapted from the teacher's pkg/storage/batcher.go: a
// small buffered writer in front of BoltDB so high-frequency, low-value
// updates (fragment access counters) don't each force an individual
// fsync'd transaction. Flushes every 100 entries or 250ms, whichever
// comes first.
package nodeserver

import (
	"time"

	bolt "go.etcd.io/bbolt"
)

type kv struct{ k, v []byte }

type batcher struct {
	db     *bolt.DB
	bucket string
	ch     chan kv
}

func newBatcher(db *bolt.DB, bucket string) *batcher {
	b := &batcher{db: db, bucket: bucket, ch: make(chan kv, 1024)}
	go b.loop()
	return b
}

func (b *batcher) put(k, v []byte) { b.ch <- kv{k, v} }

func (b *batcher) loop() {
	buf := make([]kv, 0, 100)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		_ = b.db.Update(func(tx *bolt.Tx) error {
			bk := tx.Bucket([]byte(b.bucket))
			for _, p := range buf {
				bk.Put(p.k, p.v)
			}
			return nil
		})
		buf = buf[:0]
	}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case p := <-b.ch:
			buf = append(buf, p)
			if len(buf) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
