package nodeserver

import (
	"encoding/base64"
	"encoding/hex"
	"crypto/sha256"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
)

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// storeMetadata mirrors transport.FragmentMetadata, the nested
// "metadata" object the client embeds in a /store body (spec.md §4.5
// step 8 / §6).
type storeMetadata struct {
	FileHash        string `json:"file_hash"`
	PartitionIndex  int    `json:"partition_index"`
	RedundancyIndex int    `json:"redundancy_index"`
	DoubleEncrypted bool   `json:"double_encrypted"`
	Timestamp       int64  `json:"timestamp"`
}

// storeRequest mirrors spec.md §6's /store body: an opaque encrypted
// fragment plus the metadata needed to verify and later retrieve it.
type storeRequest struct {
	FragmentID string        `json:"fragment_id" binding:"required"`
	Data       string        `json:"data" binding:"required"` // base64
	Checksum   string        `json:"checksum" binding:"required"`
	Metadata   storeMetadata `json:"metadata"`
}

func (s *Server) handleStore(c *gin.Context) {
	start := time.Now()
	storeTotal.Inc()
	defer func() { storeLatency.Observe(time.Since(start).Seconds()) }()

	var req storeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data is not valid base64"})
		return
	}

	if s.AvailableSpace() < int64(len(data)) {
		c.JSON(http.StatusInsufficientStorage, gin.H{"error": "insufficient space"})
		return
	}

	if hexSHA256(data) != req.Checksum {
		c.JSON(http.StatusBadRequest, gin.H{"error": "checksum mismatch"})
		return
	}

	path := filepath.Join(s.dataDir, req.FragmentID+".frag")
	if err := atomicWrite(path, data, 0o600); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write failed"})
		return
	}

	rec := fragmentRecord{
		FragmentID:      req.FragmentID,
		Path:            path,
		Size:            int64(len(data)),
		Checksum:        req.Checksum,
		Fingerprint:     s.fpSeed.Eval(data),
		FileHash:        req.Metadata.FileHash,
		PartitionIndex:  req.Metadata.PartitionIndex,
		RedundancyIndex: req.Metadata.RedundancyIndex,
		StoredAt:        time.Now(),
	}
	if err := putFragmentRecord(s.db, rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metadata write failed"})
		return
	}

	s.mu.Lock()
	s.usedSpace += int64(len(data))
	used := s.usedSpace
	s.mu.Unlock()
	_ = storeUsedSpace(s.db, used)

	if s.dir != nil {
		go func(rec fragmentRecord) {
			ctx, cancel := newBackgroundContext()
			defer cancel()
			_ = s.dir.RegisterFragment(ctx, frLocation(s.NodeID, rec))
		}(rec)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"fragment_id": req.FragmentID,
		"size":        len(data),
	})
}

func (s *Server) handleRetrieve(c *gin.Context) {
	start := time.Now()
	retrieveTotal.Inc()
	defer func() { retrieveLatency.Observe(time.Since(start).Seconds()) }()

	id := c.Param("id")
	rec, found, err := getFragmentRecord(s.db, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metadata lookup failed"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "fragment not found"})
		return
	}

	data, err := os.ReadFile(rec.Path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "fragment file missing"})
		return
	}
	if hexSHA256(data) != rec.Checksum {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stored fragment failed integrity check"})
		return
	}

	rec.AccessCount++
	if raw, err := marshalRecord(rec); err == nil {
		s.accessBatch.put([]byte(rec.FragmentID), raw)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"fragment_id": id,
		"data":        base64.StdEncoding.EncodeToString(data),
		"checksum":    rec.Checksum,
		"metadata": storeMetadata{
			FileHash:        rec.FileHash,
			PartitionIndex:  rec.PartitionIndex,
			RedundancyIndex: rec.RedundancyIndex,
		},
	})
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"node_id":    s.NodeID,
		"public_ip":  publicIP(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	count, _ := fragmentCount(s.db)
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"node_id":         s.NodeID,
		"used_space":      s.usedSpace,
		"available_space": s.AvailableSpace(),
		"fragment_count":  count,
	})
}
