package nodeserver

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// identity is the storage node's persistent self-description, written
// once to node_id.json and reused across restarts (spec.md §4.9).
type identity struct {
	NodeID string `json:"node_id"`
}

func loadOrCreateIdentity(dataDir string) (identity, error) {
	path := filepath.Join(dataDir, "node_id.json")
	if raw, err := os.ReadFile(path); err == nil {
		var id identity
		if err := json.Unmarshal(raw, &id); err == nil && id.NodeID != "" {
			return id, nil
		}
	}
	id := identity{NodeID: uuid.NewString()}
	raw, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return identity{}, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return identity{}, err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return identity{}, err
	}
	return id, nil
}
