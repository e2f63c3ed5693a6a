// Package nodeserver implements the storage-node fragment service of
// spec.md §4.9: an untrusted blob server accepting opaque
// (fragment_id, ciphertext, checksum, metadata) tuples over HTTP and
// serving them back by id, with a persisted fragment table, periodic
// directory heartbeat, integrity sweeps, and free-space logging.
//
// Grounded on the teacher's cmd/server/main.go (bbolt-backed state
// reload on startup, gcLoop-style background tickers) with the gRPC
// transport replaced by gin HTTP handlers per spec.md §4.9/§6.
package nodeserver

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmyneni/mystvault/internal/directory"
	"github.com/mmyneni/mystvault/internal/fingerprint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	bolt "go.etcd.io/bbolt"
)

const (
	HeartbeatInterval     = 30 * time.Second
	IntegritySweepInterval = time.Hour
	FreeSpaceLogInterval  = 5 * time.Minute
)

var (
	storeTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mystvault_node_store_total",
		Help: "Total /store requests.",
	})
	storeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mystvault_node_store_duration_seconds",
		Help:    "Latency of /store handling.",
		Buckets: prometheus.DefBuckets,
	})
	retrieveTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mystvault_node_retrieve_total",
		Help: "Total /retrieve requests.",
	})
	retrieveLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mystvault_node_retrieve_duration_seconds",
		Help:    "Latency of /retrieve handling.",
		Buckets: prometheus.DefBuckets,
	})
	metricsOnce sync.Once
)

func registerMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(storeTotal, storeLatency, retrieveTotal, retrieveLatency)
	})
}

// Server is one storage node.
type Server struct {
	NodeID       string
	dataDir      string
	db           *bolt.DB
	totalSpace   int64
	fpSeed       *fingerprint.Fingerprint
	accessBatch  *batcher
	dir          *directory.Client
	selfAddr     string
	mu           sync.Mutex
	usedSpace    int64
	shuttingDown chan struct{}
}

// Options configures a new Server.
type Options struct {
	DataDir       string
	DBPath        string
	TotalSpace    int64
	SelfAddr      string // host:port this node is reachable at
	DirectoryURL  string
}

// New constructs a storage node, reloading persisted identity and
// fragment-table state from disk.
func New(opts Options) (*Server, error) {
	registerMetrics()

	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("nodeserver: mkdir datadir: %w", err)
	}
	id, err := loadOrCreateIdentity(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("nodeserver: load identity: %w", err)
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(opts.DataDir, "node.db")
	}
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("nodeserver: open db: %w", err)
	}
	if err := ensureBuckets(db); err != nil {
		return nil, fmt.Errorf("nodeserver: ensure buckets: %w", err)
	}

	fp, err := fingerprint.NewRandom()
	if err != nil {
		return nil, err
	}

	used, err := loadUsedSpace(db)
	if err != nil {
		return nil, err
	}

	var dirClient *directory.Client
	if opts.DirectoryURL != "" {
		dirClient = directory.New(opts.DirectoryURL)
	}

	s := &Server{
		NodeID:       id.NodeID,
		dataDir:      opts.DataDir,
		db:           db,
		totalSpace:   opts.TotalSpace,
		fpSeed:       fp,
		accessBatch:  newBatcher(db, fragmentsBucket),
		dir:          dirClient,
		selfAddr:     opts.SelfAddr,
		usedSpace:    used,
		shuttingDown: make(chan struct{}),
	}

	if err := s.reconcileOnStartup(); err != nil {
		log.Printf("nodeserver: startup reconcile: %v", err)
	}
	return s, nil
}

// reconcileOnStartup scans *.frag files not present in the fragment
// table and re-hashes them in, per spec.md §9's design note ("a
// conforming implementation SHOULD rehash on startup").
func (s *Server) reconcileOnStartup() error {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".frag" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".frag")]
		if _, found, _ := getFragmentRecord(s.db, id); found {
			continue
		}
		path := filepath.Join(s.dataDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		rec := fragmentRecord{
			FragmentID:  id,
			Path:        path,
			Size:        int64(len(data)),
			Checksum:    hexSHA256(data),
			Fingerprint: s.fpSeed.Eval(data),
			StoredAt:    time.Now(),
		}
		if err := putFragmentRecord(s.db, rec); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the server's database handle.
func (s *Server) Close() error {
	close(s.shuttingDown)
	return s.db.Close()
}

// AvailableSpace returns remaining configured capacity in bytes.
func (s *Server) AvailableSpace() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalSpace - s.usedSpace
}

// Router builds the gin engine exposing /store, /retrieve/:id, /ping,
// /health, and /metrics.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/store", s.handleStore)
	r.GET("/retrieve/:id", s.handleRetrieve)
	r.GET("/ping", s.handlePing)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// RunBackground starts the heartbeat, integrity-sweep, and free-space
// logging goroutines. It returns immediately; the loops stop when
// Close is called.
func (s *Server) RunBackground(ctx context.Context) {
	go s.heartbeatLoop(ctx)
	go s.integritySweepLoop(ctx)
	go s.freeSpaceLogLoop(ctx)
}

// Shutdown best-effort unregisters this node from the directory.
func (s *Server) Shutdown(ctx context.Context) {
	if s.dir == nil {
		return
	}
	_ = s.dir.Unregister(ctx, s.NodeID)
}

func publicIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
