package nodeserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mmyneni/mystvault/internal/directory"
)

func readFragmentFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func newBackgroundContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func marshalRecord(rec fragmentRecord) ([]byte, error) {
	return json.Marshal(rec)
}

func frLocation(nodeID string, rec fragmentRecord) directory.FragmentLocation {
	return directory.FragmentLocation{
		FragmentID:     rec.FragmentID,
		NodeID:         nodeID,
		FileHash:       rec.FileHash,
		PartitionIndex: rec.PartitionIndex,
	}
}

// heartbeatLoop reports liveness to the directory every HeartbeatInterval.
// A failed heartbeat (e.g. the directory returning 404 because it forgot
// this node across a restart) triggers a re-Register rather than giving up,
// per spec.md §9's note that registration is eventually-consistent.
func (s *Server) heartbeatLoop(ctx context.Context) {
	if s.dir == nil {
		return
	}
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shuttingDown:
			return
		case <-ticker.C:
			hctx, cancel := newBackgroundContext()
			err := s.dir.Heartbeat(hctx, s.NodeID)
			cancel()
			if err != nil {
				log.Printf("nodeserver: heartbeat failed, re-registering: %v", err)
				s.reregister()
			}
		}
	}
}

func (s *Server) reregister() {
	ctx, cancel := newBackgroundContext()
	defer cancel()
	_ = s.dir.Register(ctx, directory.Node{
		ID:      s.NodeID,
		Address: s.selfAddr,
	})
}

// integritySweepLoop re-hashes every stored fragment once per
// IntegritySweepInterval, using the fingerprint as a cheap pre-check:
// a fingerprint mismatch marks the fragment failed without the SHA-256
// rehash, a match is confirmed by the rehash, surfacing silent bit-rot
// before a download ever needs the fragment.
func (s *Server) integritySweepLoop(ctx context.Context) {
	ticker := time.NewTicker(IntegritySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shuttingDown:
			return
		case <-ticker.C:
			s.runIntegritySweep()
		}
	}
}

// runIntegritySweep checks every stored fragment once and returns the
// number that failed verification.
func (s *Server) runIntegritySweep() int {
	recs, err := allFragmentRecords(s.db)
	if err != nil {
		log.Printf("nodeserver: integrity sweep: list fragments: %v", err)
		return 0
	}
	var corrupted int
	for _, rec := range recs {
		data, err := readFragmentFile(rec.Path)
		if err != nil {
			log.Printf("nodeserver: integrity sweep: fragment %s unreadable: %v", rec.FragmentID, err)
			corrupted++
			continue
		}
		if s.fpSeed.Eval(data) == rec.Fingerprint && hexSHA256(data) == rec.Checksum {
			continue
		}
		corrupted++
		log.Printf("nodeserver: integrity sweep: fragment %s failed verification", rec.FragmentID)
	}
	log.Printf("nodeserver: integrity sweep complete: %d fragments, %d failed", len(recs), corrupted)
	return corrupted
}

// freeSpaceLogLoop periodically logs remaining capacity, the signal an
// operator watches to decide when to add nodes (spec.md §4.9).
func (s *Server) freeSpaceLogLoop(ctx context.Context) {
	ticker := time.NewTicker(FreeSpaceLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shuttingDown:
			return
		case <-ticker.C:
			log.Printf("nodeserver: %s available of %s total", humanBytes(s.AvailableSpace()), humanBytes(s.totalSpace))
		}
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for next := n / unit; next >= unit; next /= unit {
		div *= unit
		exp++
	}
	units := []string{"KiB", "MiB", "GiB", "TiB"}
	return fmt.Sprintf("%.1f%s", float64(n)/float64(div), units[exp])
}
