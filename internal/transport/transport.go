// Package transport implements node selection and the fragment
// store/retrieve client of spec.md §4.7: latency-ranked node
// selection, POST/GET against the storage-node fragment service, and
// the availability ("verify") probe.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/mmyneni/mystvault/internal/directory"
	"github.com/mmyneni/mystvault/internal/manifest"
	"github.com/mmyneni/mystvault/internal/mysterrors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	PingTimeout     = 5 * time.Second
	StoreTimeout    = 30 * time.Second
	RetrieveTimeout = 30 * time.Second

	reliabilityEpsilon = 0.01
)

var requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "mystvault_transport_request_duration_seconds",
	Help:    "Latency of client requests against storage nodes.",
	Buckets: prometheus.DefBuckets,
}, []string{"op"})

func init() {
	prometheus.MustRegister(requestLatency)
}

// FragmentMetadata is embedded in a /store request and returned by /retrieve.
type FragmentMetadata struct {
	FileHash        string `json:"file_hash"`
	PartitionIndex  int    `json:"partition_index"`
	RedundancyIndex int    `json:"redundancy_index"`
	DoubleEncrypted bool   `json:"double_encrypted"`
	Timestamp       int64  `json:"timestamp"`
}

// StoreRequest is the body POSTed to /store.
type StoreRequest struct {
	FragmentID string           `json:"fragment_id"`
	Data       string           `json:"data"` // base64(ciphertext)
	Checksum   string           `json:"checksum"`
	Metadata   FragmentMetadata `json:"metadata"`
}

// StoreResponse is the body returned by /store.
type StoreResponse struct {
	Success    bool   `json:"success"`
	FragmentID string `json:"fragment_id"`
	Size       int    `json:"size"`
	Error      string `json:"error,omitempty"`
}

// RetrieveResponse is the body returned by /retrieve/{id}.
type RetrieveResponse struct {
	Success  bool             `json:"success"`
	Data     string           `json:"data"` // base64(ciphertext)
	Checksum string           `json:"checksum"`
	Metadata FragmentMetadata `json:"metadata"`
}

// Client talks to storage nodes over HTTP.
type Client struct {
	http *http.Client
}

// New returns a transport Client.
func New() *Client {
	return &Client{http: &http.Client{}}
}

// RankedNode is a directory.Node annotated with its measured ping
// latency and ranking score.
type RankedNode struct {
	Node    directory.Node
	Latency time.Duration
	Score   float64 // latency_ms / max(reliability, epsilon); ascending
}

// Rank pings every candidate node concurrently and sorts ascending by
// latency/reliability. Unreachable nodes get +Inf latency and sort last.
func (c *Client) Rank(ctx context.Context, nodes []directory.Node) []RankedNode {
	ranked := make([]RankedNode, len(nodes))
	var wg sync.WaitGroup
	for i, n := range nodes {
		wg.Add(1)
		go func(i int, n directory.Node) {
			defer wg.Done()
			lat, err := c.Ping(ctx, n)
			reliability := n.NormalizedReliability()
			if reliability < reliabilityEpsilon {
				reliability = reliabilityEpsilon
			}
			score := math.Inf(1)
			if err == nil {
				score = float64(lat.Milliseconds()) / reliability
			} else {
				lat = time.Duration(math.MaxInt64)
			}
			ranked[i] = RankedNode{Node: n, Latency: lat, Score: score}
		}(i, n)
	}
	wg.Wait()
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score < ranked[j].Score })
	return ranked
}

// Ping measures round-trip latency to a node's /ping endpoint.
func (c *Client) Ping(ctx context.Context, n directory.Node) (time.Duration, error) {
	timer := prometheus.NewTimer(requestLatency.WithLabelValues("ping"))
	defer timer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+n.HostPort()+"/ping", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &mysterrors.NodeUnreachable{Address: n.HostPort(), Cause: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return 0, &mysterrors.NodeUnreachable{Address: n.HostPort(), Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return time.Since(start), nil
}

// Store POSTs a fragment to a node's /store endpoint.
func (c *Client) Store(ctx context.Context, n directory.Node, req StoreRequest) (*StoreResponse, error) {
	timer := prometheus.NewTimer(requestLatency.WithLabelValues("store"))
	defer timer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, StoreTimeout)
	defer cancel()
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+n.HostPort()+"/store", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &mysterrors.NodeUnreachable{Address: n.HostPort(), Cause: err}
	}
	defer resp.Body.Close()

	var out StoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &mysterrors.NodeUnreachable{Address: n.HostPort(), Cause: err}
	}
	if resp.StatusCode/100 != 2 || !out.Success {
		return &out, fmt.Errorf("store to %s: status %d: %s", n.HostPort(), resp.StatusCode, out.Error)
	}
	return &out, nil
}

// Retrieve GETs a fragment by id from a node. A 404, or a response
// whose body does not report success, is returned as
// mysterrors.FragmentNotFound; a 5xx status, a connection failure, or
// an undecodable body is returned as mysterrors.NodeUnreachable.
func (c *Client) Retrieve(ctx context.Context, nodeAddr, fragmentID string) (*RetrieveResponse, error) {
	timer := prometheus.NewTimer(requestLatency.WithLabelValues("retrieve"))
	defer timer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, RetrieveTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+nodeAddr+"/retrieve/"+fragmentID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &mysterrors.NodeUnreachable{Address: nodeAddr, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &mysterrors.FragmentNotFound{FragmentID: fragmentID, Address: nodeAddr}
	}
	if resp.StatusCode/100 == 5 {
		return nil, &mysterrors.NodeUnreachable{Address: nodeAddr, Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}
	var out RetrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &mysterrors.NodeUnreachable{Address: nodeAddr, Cause: err}
	}
	if !out.Success {
		return nil, &mysterrors.FragmentNotFound{FragmentID: fragmentID, Address: nodeAddr}
	}
	return &out, nil
}

// Report is the result of an availability probe (spec.md §4.7 "verify").
type Report struct {
	PartitionsTotal      int
	PartitionsRecoverable int
	Recoverable          bool
}

// Verify checks reachability of every fragment replica listed in m and
// returns an availability report. A partition is recoverable if at
// least one of its fragments' nodes responds to /ping; the file is
// recoverable if the count of recoverable partitions is at least
// needed (D for Reed-Solomon manifests, the partition count otherwise).
func (c *Client) Verify(ctx context.Context, m *manifest.Manifest) Report {
	needed := len(m.Partitions)
	if m.ReedSolomon && m.ReedSolomonConfig != nil {
		needed = m.ReedSolomonConfig.DataShards
	}

	recoverable := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range m.Partitions {
		wg.Add(1)
		go func(p manifest.Partition) {
			defer wg.Done()
			for _, f := range p.Fragments {
				if _, err := c.Ping(ctx, directory.Node{Address: hostOf(f.NodeAddress), Port: portOf(f.NodeAddress)}); err == nil {
					mu.Lock()
					recoverable++
					mu.Unlock()
					return
				}
			}
		}(p)
	}
	wg.Wait()

	return Report{
		PartitionsTotal:       len(m.Partitions),
		PartitionsRecoverable: recoverable,
		Recoverable:           recoverable >= needed,
	}
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func portOf(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return port
}
