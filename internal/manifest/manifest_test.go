package manifest

import (
	"strings"
	"testing"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	key := "a2V5"
	m := &Manifest{
		Version:      Version,
		FileName:     "report.pdf",
		FileHash:     strings.Repeat("ab", 32),
		OriginalSize: 1024,
		Compressed:   true,
		ReedSolomon:  true,
		ReedSolomonConfig: &ReedSolomonConfig{
			DataShards: 10, ParityShards: 4, TotalShards: 14,
		},
		Timestamp: 1_700_000_000_000,
		Security: Security{
			DoubleEncryption: true,
			MasterEncryption: MasterEncryption{
				Algorithm:         "AES-256-GCM",
				Key:               &key,
				IV:                "aXY=",
				Tag:               "dGFn",
				EncryptedHash:     strings.Repeat("cd", 32),
				KeyDerivation:     "RANDOM",
				PasswordProtected: false,
			},
			FragmentEncryption: FragmentEncryption{
				Algorithm:             "AES-256-GCM",
				UniqueKeysPerFragment: true,
				TotalUniqueKeys:       42,
			},
		},
		Partitions: []Partition{
			{
				Index:            0,
				OriginalChecksum: strings.Repeat("11", 32),
				Size:             128,
				Fragments: []Fragment{
					{
						FragmentID:      strings.Repeat("22", 32),
						RedundancyIndex: 0,
						NodeID:          "node-a",
						NodeAddress:     "10.0.0.1:8080",
						Checksum:        strings.Repeat("33", 32),
						Encryption: Encryption{
							Key: "a2V5", IV: "aXY=", Tag: "dGFn", Salt: "c2FsdA==",
							Algorithm: "AES-256-GCM-LAYER2",
						},
					},
				},
			},
		},
	}

	raw, err := Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.FileName != m.FileName || got.OriginalSize != m.OriginalSize {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if got.ReedSolomonConfig == nil || got.ReedSolomonConfig.TotalShards != 14 {
		t.Fatalf("reed_solomon_config lost in round-trip")
	}
}

func TestUnmarshalToleratesMissingOptionalFields(t *testing.T) {
	raw := []byte(`{
		"version": "3.0",
		"file_name": "x",
		"file_hash": "` + strings.Repeat("aa", 32) + `",
		"original_size": 10,
		"compressed": false,
		"reed_solomon": false,
		"reed_solomon_config": null,
		"timestamp": 1,
		"security": {
			"double_encryption": true,
			"master_encryption": {
				"algorithm": "AES-256-GCM",
				"key": null,
				"iv": "aXY=",
				"tag": "dGFn",
				"encrypted_hash": "` + strings.Repeat("bb", 32) + `",
				"key_derivation": "PBKDF2",
				"password_protected": true
			},
			"fragment_encryption": {
				"algorithm": "AES-256-GCM",
				"unique_keys_per_fragment": true,
				"total_unique_keys": 3
			}
		},
		"partitions": []
	}`)

	m, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m.ReedSolomonConfig != nil {
		t.Fatalf("expected nil reed_solomon_config")
	}
	if m.Security.MasterEncryption.Salt != nil {
		t.Fatalf("expected nil salt")
	}
}

func TestUnmarshalRejectsUnknownMajorVersion(t *testing.T) {
	raw := []byte(`{"version":"9.0"}`)
	if _, err := Unmarshal(raw); err == nil {
		t.Fatalf("expected UnsupportedManifest error")
	}
}
