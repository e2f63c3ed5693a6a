// Package directory is a thin client for the external directory
// service (spec.md §1, §6): a node/heartbeat registry. Only the
// request/response shapes are fixed here; the directory's own
// implementation is an out-of-scope collaborator.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Node is the directory's node descriptor (spec.md §3). Reliability
// is left in whatever scale the directory reports; callers normalize
// it (spec.md §9: treat any value >= 2 as a percentage).
type Node struct {
	ID          string  `json:"id"`
	Address     string  `json:"address"`
	Port        int     `json:"port"`
	Reliability float64 `json:"reliability"`
}

// NormalizedReliability returns Reliability scaled into [0,1].
func (n Node) NormalizedReliability() float64 {
	if n.Reliability >= 2 {
		return n.Reliability / 100
	}
	return n.Reliability
}

// HostPort returns "address:port".
func (n Node) HostPort() string {
	return fmt.Sprintf("%s:%d", n.Address, n.Port)
}

// Client talks to the directory service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a directory Client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

type nodesResponse struct {
	Nodes []Node `json:"nodes"`
}

// Nodes requests at least count candidate nodes with at least minSpace
// bytes of free space each.
func (c *Client) Nodes(ctx context.Context, count int, minSpace int64) ([]Node, error) {
	q := url.Values{}
	q.Set("count", strconv.Itoa(count))
	q.Set("minSpace", strconv.FormatInt(minSpace, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/nodes?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: query nodes: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory: query nodes: status %d", resp.StatusCode)
	}
	var out nodesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("directory: decode nodes response: %w", err)
	}
	return out.Nodes, nil
}

// Register announces a node to the directory. Best-effort by callers.
func (c *Client) Register(ctx context.Context, n Node) error {
	return c.postJSON(ctx, "/register", n)
}

// Heartbeat reports liveness for nodeID. Best-effort by callers.
func (c *Client) Heartbeat(ctx context.Context, nodeID string) error {
	return c.postJSON(ctx, "/heartbeat/"+url.PathEscape(nodeID), nil)
}

// Unregister signals shutdown for nodeID. Best-effort by callers.
func (c *Client) Unregister(ctx context.Context, nodeID string) error {
	return c.postJSON(ctx, "/unregister/"+url.PathEscape(nodeID), nil)
}

// FragmentLocation is reported to the directory after a successful
// /store, so it can optionally index fragment locations.
type FragmentLocation struct {
	FragmentID      string `json:"fragment_id"`
	NodeID          string `json:"node_id"`
	FileHash        string `json:"file_hash"`
	PartitionIndex  int    `json:"partition_index"`
}

// RegisterFragment reports a fragment's location. Best-effort.
func (c *Client) RegisterFragment(ctx context.Context, loc FragmentLocation) error {
	return c.postJSON(ctx, "/fragment/register", loc)
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}) error {
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory: POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("directory: POST %s: status %d", path, resp.StatusCode)
	}
	return nil
}
