// Package manifest implements the Recovery Manifest (.myst) schema and
// codec of spec.md §6/§4.8: a statically typed schema serialized as
// pretty-printed UTF-8 JSON, replacing the dynamic-JSON approach spec.md
// §9 flags for re-architecture.
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mmyneni/mystvault/internal/mysterrors"
)

// SupportedMajorVersion is the major version this codec accepts.
// Version is the current full version string written to new manifests.
const (
	SupportedMajorVersion = "3"
	Version               = "3.0"
)

// Manifest is the root .myst document.
type Manifest struct {
	Version           string             `json:"version"`
	FileName          string             `json:"file_name"`
	FileHash          string             `json:"file_hash"`
	OriginalSize      int64              `json:"original_size"`
	Compressed        bool               `json:"compressed"`
	ReedSolomon       bool               `json:"reed_solomon"`
	ReedSolomonConfig *ReedSolomonConfig `json:"reed_solomon_config"`
	Timestamp         int64              `json:"timestamp"`
	Security          Security           `json:"security"`
	Partitions        []Partition        `json:"partitions"`
}

// ReedSolomonConfig records the (D,P) erasure parameters used, or is
// null when Reed-Solomon is disabled.
type ReedSolomonConfig struct {
	DataShards   int `json:"data_shards"`
	ParityShards int `json:"parity_shards"`
	TotalShards  int `json:"total_shards"`
}

// Security carries the master (layer 1) and fragment (layer 2)
// encryption parameters.
type Security struct {
	DoubleEncryption    bool                `json:"double_encryption"`
	MasterEncryption    MasterEncryption    `json:"master_encryption"`
	FragmentEncryption  FragmentEncryption  `json:"fragment_encryption"`
}

// MasterEncryption describes the whole-file AES-256-GCM layer.
// Exactly one of Key/Salt is non-nil: Key when the master key is
// embedded in the manifest, Salt when the manifest is password-bound.
type MasterEncryption struct {
	Algorithm         string  `json:"algorithm"`
	Key               *string `json:"key"`
	IV                string  `json:"iv"`
	Tag               string  `json:"tag"`
	Salt              *string `json:"salt"`
	EncryptedHash     string  `json:"encrypted_hash"`
	KeyDerivation     string  `json:"key_derivation"` // "PBKDF2" | "RANDOM"
	PasswordProtected bool    `json:"password_protected"`
}

// FragmentEncryption describes the per-fragment AES-256-GCM layer.
type FragmentEncryption struct {
	Algorithm           string `json:"algorithm"`
	UniqueKeysPerFragment bool `json:"unique_keys_per_fragment"`
	TotalUniqueKeys     int    `json:"total_unique_keys"`
}

// Partition is one data or parity shard and its fragment replicas.
type Partition struct {
	Index             int        `json:"index"`
	OriginalChecksum  string     `json:"original_checksum"`
	Size              int        `json:"size"`
	Fragments         []Fragment `json:"fragments"`
}

// Fragment is one encrypted, transmitted copy of a shard.
type Fragment struct {
	FragmentID      string     `json:"fragment_id"`
	RedundancyIndex int        `json:"redundancy_index"`
	NodeID          string     `json:"node_id"`
	NodeAddress     string     `json:"node_address"`
	Checksum        string     `json:"checksum"`
	Encryption      Encryption `json:"encryption"`
}

// Encryption is a fragment's layer-2 key material, all base64-encoded.
type Encryption struct {
	Key       string `json:"key"` // raw key, pre-PBKDF2
	IV        string `json:"iv"`
	Tag       string `json:"tag"`
	Salt      string `json:"salt"`
	Algorithm string `json:"algorithm"` // "AES-256-GCM-LAYER2"
}

// Marshal serializes m as pretty-printed, two-space-indented JSON.
func Marshal(m *Manifest) ([]byte, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: marshal: %w", err)
	}
	return b, nil
}

// Unmarshal parses a .myst document, tolerating missing optional
// fields (salt, reed_solomon_config), and rejects an unknown major
// version.
func Unmarshal(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: unmarshal: %w", err)
	}
	major := m.Version
	if i := strings.IndexByte(m.Version, '.'); i >= 0 {
		major = m.Version[:i]
	}
	if major != SupportedMajorVersion {
		return nil, &mysterrors.UnsupportedManifest{Version: m.Version}
	}
	return &m, nil
}
