package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmyneni/mystvault/internal/directory"
	"github.com/mmyneni/mystvault/internal/manifest"
	"github.com/mmyneni/mystvault/internal/mysterrors"
	"github.com/mmyneni/mystvault/internal/nodeserver"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testCluster struct {
	nodes []*httptest.Server
	dir   *httptest.Server
}

func (c *testCluster) close() {
	for _, n := range c.nodes {
		n.Close()
	}
	c.dir.Close()
}

// newTestCluster starts n real nodeserver.Server instances behind
// httptest servers, and a minimal fake directory that reports them.
func newTestCluster(t *testing.T, n int) *testCluster {
	t.Helper()
	cluster := &testCluster{}

	type nodeInfo struct {
		ID          string `json:"id"`
		Address     string `json:"address"`
		Port        int    `json:"port"`
		Reliability float64 `json:"reliability"`
	}
	var infos []nodeInfo

	for i := 0; i < n; i++ {
		dir := t.TempDir()
		srv, err := nodeserver.New(nodeserver.Options{
			DataDir:    dir,
			DBPath:     filepath.Join(dir, "node.db"),
			TotalSpace: 16 << 20,
		})
		require.NoError(t, err)
		t.Cleanup(func() { srv.Close() })

		hs := httptest.NewServer(srv.Router())
		cluster.nodes = append(cluster.nodes, hs)

		u, err := url.ParseRequestURI(hs.URL)
		require.NoError(t, err)
		port := 0
		fmt.Sscanf(u.Port(), "%d", &port)
		infos = append(infos, nodeInfo{ID: srv.NodeID, Address: u.Hostname(), Port: port, Reliability: 1})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/nodes", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"nodes": infos})
	})
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	mux.HandleFunc("/heartbeat/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	mux.HandleFunc("/unregister/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	mux.HandleFunc("/fragment/register", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	cluster.dir = httptest.NewServer(mux)

	return cluster
}

func writeTempInput(t *testing.T, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "input.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestUploadDownloadRoundTripNoRS(t *testing.T) {
	cluster := newTestCluster(t, 6)
	defer cluster.close()

	path := writeTempInput(t, []byte("hello world"))
	p := New(directory.New(cluster.dir.URL))

	opts := UploadOptions{Partitions: 4, Redundancy: 1, Compression: false, ReedSolomon: false}
	m, err := p.Upload(context.Background(), path, opts)
	require.NoError(t, err)
	require.Len(t, m.Partitions, 4)
	require.Equal(t, []int{3, 3, 3, 2}, partitionSizes(m))

	outPath := path + ".out"
	err = p.Download(context.Background(), path+".myst", outPath, DownloadOptions{})
	require.NoError(t, err)

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(out))
}

func TestUploadDownloadRoundTripWithRSAndCompression(t *testing.T) {
	cluster := newTestCluster(t, 20)
	defer cluster.close()

	content := make([]byte, 64*1024)
	path := writeTempInput(t, content)
	p := New(directory.New(cluster.dir.URL))

	opts := UploadOptions{Partitions: 10, Redundancy: 1, Compression: true, ReedSolomon: true}
	_, err := p.Upload(context.Background(), path, opts)
	require.NoError(t, err)

	outPath := path + ".out"
	err = p.Download(context.Background(), path+".myst", outPath, DownloadOptions{})
	require.NoError(t, err)

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, content, out)
}

func TestDownloadRecoversFromOneFragmentLoss(t *testing.T) {
	cluster := newTestCluster(t, 14)
	defer cluster.close()

	content := make([]byte, 32*1024)
	path := writeTempInput(t, content)
	p := New(directory.New(cluster.dir.URL))

	opts := UploadOptions{Partitions: 10, Redundancy: 1, Compression: false, ReedSolomon: true}
	_, err := p.Upload(context.Background(), path, opts)
	require.NoError(t, err)

	// Simulate failure of one partition's only replica by killing its node.
	m := readManifest(t, path+".myst")
	killNodeFor(cluster, m.Partitions[3])

	outPath := path + ".out"
	err = p.Download(context.Background(), path+".myst", outPath, DownloadOptions{})
	require.NoError(t, err)
	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, content, out)
}

func TestDownloadFailsWhenTooManyFragmentsLost(t *testing.T) {
	cluster := newTestCluster(t, 14)
	defer cluster.close()

	content := make([]byte, 32*1024)
	path := writeTempInput(t, content)
	p := New(directory.New(cluster.dir.URL))

	opts := UploadOptions{Partitions: 10, Redundancy: 1, Compression: false, ReedSolomon: true}
	_, err := p.Upload(context.Background(), path, opts)
	require.NoError(t, err)

	m := readManifest(t, path+".myst")
	for _, idx := range []int{0, 1, 2, 3, 4} {
		killNodeFor(cluster, m.Partitions[idx])
	}

	outPath := path + ".out"
	err = p.Download(context.Background(), path+".myst", outPath, DownloadOptions{})
	require.Error(t, err)
	var insufficient *mysterrors.InsufficientShards
	require.ErrorAs(t, err, &insufficient)
}

func TestDownloadPasswordBinding(t *testing.T) {
	cluster := newTestCluster(t, 8)
	defer cluster.close()

	path := writeTempInput(t, []byte("secret"))
	p := New(directory.New(cluster.dir.URL))

	opts := UploadOptions{Partitions: 3, Redundancy: 2, Compression: false, ReedSolomon: false, MasterPassword: "correct horse"}
	m, err := p.Upload(context.Background(), path, opts)
	require.NoError(t, err)
	require.Nil(t, m.Security.MasterEncryption.Key)
	require.NotNil(t, m.Security.MasterEncryption.Salt)

	out1 := path + ".out1"
	require.NoError(t, p.Download(context.Background(), path+".myst", out1, DownloadOptions{MasterPassword: "correct horse"}))
	data, err := os.ReadFile(out1)
	require.NoError(t, err)
	require.Equal(t, "secret", string(data))

	err = p.Download(context.Background(), path+".myst", path+".out2", DownloadOptions{MasterPassword: "wrong"})
	require.Error(t, err)
	var incorrect *mysterrors.IncorrectPassword
	require.ErrorAs(t, err, &incorrect)

	err = p.Download(context.Background(), path+".myst", path+".out3", DownloadOptions{})
	require.Error(t, err)
	var required *mysterrors.PasswordRequired
	require.ErrorAs(t, err, &required)
}

func partitionSizes(m *manifest.Manifest) []int {
	out := make([]int, len(m.Partitions))
	for i, p := range m.Partitions {
		out[i] = p.Size
	}
	return out
}

func readManifest(t *testing.T, path string) *manifest.Manifest {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	m, err := manifest.Unmarshal(raw)
	require.NoError(t, err)
	return m
}

func killNodeFor(cluster *testCluster, part manifest.Partition) {
	for _, frag := range part.Fragments {
		for _, n := range cluster.nodes {
			if stripScheme(n.URL) == frag.NodeAddress {
				n.Close()
			}
		}
	}
}

func stripScheme(u string) string {
	const prefix = "http://"
	if len(u) > len(prefix) && u[:len(prefix)] == prefix {
		return u[len(prefix):]
	}
	return u
}
