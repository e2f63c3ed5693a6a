package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/mmyneni/mystvault/internal/directory"
	"github.com/mmyneni/mystvault/internal/mysterrors"
	"github.com/stretchr/testify/require"
)

func testNode(t *testing.T, srv *httptest.Server) directory.Node {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return directory.Node{ID: "n1", Address: u.Hostname(), Port: port, Reliability: 1}
}

func TestPingSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New()
	node := testNode(t, srv)
	lat, err := c.Ping(context.Background(), node)
	require.NoError(t, err)
	require.GreaterOrEqual(t, lat.Nanoseconds(), int64(0))
}

func TestStoreAndRetrieveRoundTrip(t *testing.T) {
	store := make(map[string]StoreRequest)
	mux := http.NewServeMux()
	mux.HandleFunc("/store", func(w http.ResponseWriter, r *http.Request) {
		var req StoreRequest
		json.NewDecoder(r.Body).Decode(&req)
		store[req.FragmentID] = req
		json.NewEncoder(w).Encode(StoreResponse{Success: true, FragmentID: req.FragmentID, Size: len(req.Data)})
	})
	mux.HandleFunc("/retrieve/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/retrieve/"):]
		req, ok := store[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(RetrieveResponse{Success: true, Data: req.Data, Checksum: req.Checksum})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	node := testNode(t, srv)

	c := New()
	storeResp, err := c.Store(context.Background(), node, StoreRequest{
		FragmentID: "frag-1", Data: "aGVsbG8=", Checksum: "deadbeef",
	})
	require.NoError(t, err)
	require.True(t, storeResp.Success)

	retResp, err := c.Retrieve(context.Background(), node.HostPort(), "frag-1")
	require.NoError(t, err)
	require.Equal(t, "aGVsbG8=", retResp.Data)
}

func TestRetrieveMissingFragmentIsSoftError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/retrieve/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	node := testNode(t, srv)

	c := New()
	_, err := c.Retrieve(context.Background(), node.HostPort(), "missing")
	require.Error(t, err)
	var notFound *mysterrors.FragmentNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestRankSortsByLatencyOverReliability(t *testing.T) {
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }))
	defer fast.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }))
	down.Close() // make it unreachable

	c := New()
	nodes := []directory.Node{testNode(t, down), testNode(t, fast)}
	ranked := c.Rank(context.Background(), nodes)
	require.Len(t, ranked, 2)
	require.Equal(t, fast.URL[len("http://"):], ranked[0].Node.HostPort())
}
