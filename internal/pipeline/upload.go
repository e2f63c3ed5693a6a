// Package pipeline orchestrates the upload (C5) and download (C6)
// pipelines of spec.md §4.5/§4.6: master encrypt/compress/partition on
// the way in, the exact reverse plus integrity checks on the way out.
package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mmyneni/mystvault/internal/compress"
	"github.com/mmyneni/mystvault/internal/crypto"
	"github.com/mmyneni/mystvault/internal/directory"
	"github.com/mmyneni/mystvault/internal/erasure"
	"github.com/mmyneni/mystvault/internal/manifest"
	"github.com/mmyneni/mystvault/internal/mysterrors"
	"github.com/mmyneni/mystvault/internal/partition"
	"github.com/mmyneni/mystvault/internal/transport"
)

// UploadOptions mirrors spec.md §4.5's input options.
type UploadOptions struct {
	Partitions     int // D
	Redundancy     int // R
	Compression    bool
	ReedSolomon    bool
	MasterPassword string // empty means none
}

// DefaultUploadOptions matches spec.md §4.5's stated defaults.
func DefaultUploadOptions() UploadOptions {
	return UploadOptions{Partitions: 10, Redundancy: 3, Compression: true, ReedSolomon: true}
}

// Pipeline ties the directory and transport clients together for the
// upload/download orchestrations.
type Pipeline struct {
	Directory *directory.Client
	Transport *transport.Client
}

// New returns a Pipeline talking to the given directory.
func New(dir *directory.Client) *Pipeline {
	return &Pipeline{Directory: dir, Transport: transport.New()}
}

// Upload reads the file at path, runs the full C5 pipeline, writes
// "<path>.myst" next to it, and returns the manifest.
func (p *Pipeline) Upload(ctx context.Context, path string, opts UploadOptions) (*manifest.Manifest, error) {
	plaintext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read %s: %w", path, err)
	}
	fileHash := hex.EncodeToString(crypto.SHA256(plaintext))

	masterKey, keyB64, saltB64, keyDerivation, passwordProtected, err := deriveMasterKeyMaterial(opts.MasterPassword)
	if err != nil {
		return nil, err
	}

	ct, masterIV, masterTag, err := crypto.Encrypt(masterKey, plaintext)
	if err != nil {
		return nil, err
	}
	encryptedHash := hex.EncodeToString(crypto.SHA256(ct))

	processed := ct
	if opts.Compression {
		processed, err = compress.Compress(ct)
		if err != nil {
			return nil, fmt.Errorf("pipeline: compress: %w", err)
		}
	}

	D := opts.Partitions
	var shards [][]byte
	var rsConfig *manifest.ReedSolomonConfig
	if opts.ReedSolomon {
		P := erasure.ParityCount(D)
		codec, err := erasure.New(D, P)
		if err != nil {
			return nil, err
		}
		shards, _, err = codec.Encode(processed)
		if err != nil {
			return nil, err
		}
		rsConfig = &manifest.ReedSolomonConfig{DataShards: D, ParityShards: P, TotalShards: D + P}
	} else {
		shards = partition.Split(processed, D)
	}

	R := opts.Redundancy
	if R < 1 {
		R = 1
	}
	needed := len(shards) * R

	maxShardLen := 0
	for _, sh := range shards {
		if len(sh) > maxShardLen {
			maxShardLen = len(sh)
		}
	}

	nodes, err := p.Directory.Nodes(ctx, needed, int64(maxShardLen))
	if err != nil {
		return nil, fmt.Errorf("pipeline: discover nodes: %w", err)
	}
	if len(nodes) < needed {
		return nil, &mysterrors.InsufficientNodes{Have: len(nodes), Need: needed}
	}

	ranked := p.Transport.Rank(ctx, nodes)

	partitions, err := p.distribute(ctx, shards, ranked, R, fileHash)
	if err != nil {
		return nil, err
	}

	m := &manifest.Manifest{
		Version:           manifest.Version,
		FileName:          filepath.Base(path),
		FileHash:          fileHash,
		OriginalSize:      int64(len(plaintext)),
		Compressed:        opts.Compression,
		ReedSolomon:       opts.ReedSolomon,
		ReedSolomonConfig: rsConfig,
		Timestamp:         time.Now().UnixMilli(),
		Security: manifest.Security{
			DoubleEncryption: true,
			MasterEncryption: manifest.MasterEncryption{
				Algorithm:         "AES-256-GCM",
				Key:               keyB64,
				IV:                base64.StdEncoding.EncodeToString(masterIV),
				Tag:               base64.StdEncoding.EncodeToString(masterTag),
				Salt:              saltB64,
				EncryptedHash:     encryptedHash,
				KeyDerivation:     keyDerivation,
				PasswordProtected: passwordProtected,
			},
			FragmentEncryption: manifest.FragmentEncryption{
				Algorithm:             "AES-256-GCM",
				UniqueKeysPerFragment: true,
				TotalUniqueKeys:       needed,
			},
		},
		Partitions: partitions,
	}

	raw, err := manifest.Marshal(m)
	if err != nil {
		return nil, err
	}
	manifestPath := path + ".myst"
	if err := os.WriteFile(manifestPath, raw, 0o644); err != nil {
		return nil, fmt.Errorf("pipeline: write manifest: %w", err)
	}
	return m, nil
}

func deriveMasterKeyMaterial(password string) (key []byte, keyB64, saltB64 *string, keyDerivation string, passwordProtected bool, err error) {
	if password == "" {
		key, err = crypto.RandomBytes(crypto.KeySize)
		if err != nil {
			return nil, nil, nil, "", false, err
		}
		k := base64.StdEncoding.EncodeToString(key)
		return key, &k, nil, "RANDOM", false, nil
	}
	salt, err := crypto.RandomBytes(crypto.MasterSaltSize)
	if err != nil {
		return nil, nil, nil, "", false, err
	}
	key = crypto.DeriveMasterKey(password, salt)
	s := base64.StdEncoding.EncodeToString(salt)
	return key, nil, &s, "PBKDF2", true, nil
}

// distribute stores every shard's R replicas round-robin over ranked
// nodes, advancing to the next node (not the next shard) on a failed
// attempt, bounded at 2*R attempts per shard per spec.md §4.5 step 8.
func (p *Pipeline) distribute(ctx context.Context, shards [][]byte, ranked []transport.RankedNode, R int, fileHash string) ([]manifest.Partition, error) {
	if len(ranked) == 0 {
		return nil, &mysterrors.InsufficientNodes{Have: 0, Need: len(shards) * R}
	}

	partitions := make([]manifest.Partition, len(shards))
	rr := 0
	for i, shard := range shards {
		maxAttempts := 2 * R
		if maxAttempts < R {
			maxAttempts = R
		}
		attempts := 0
		fragments := make([]manifest.Fragment, 0, R)
		for r := 0; r < R; r++ {
			var stored *manifest.Fragment
			for {
				if attempts >= maxAttempts {
					return nil, &mysterrors.DistributionFailed{Shard: i}
				}
				node := ranked[rr%len(ranked)].Node
				rr++
				attempts++
				frag, err := p.storeFragment(ctx, node, shard, i, r, fileHash)
				if err != nil {
					log.Printf("pipeline: store shard %d replica %d on %s failed: %v", i, r, node.HostPort(), err)
					continue
				}
				stored = frag
				break
			}
			fragments = append(fragments, *stored)
		}
		partitions[i] = manifest.Partition{
			Index:            i,
			OriginalChecksum: hex.EncodeToString(crypto.SHA256(shard)),
			Size:             len(shard),
			Fragments:        fragments,
		}
	}
	return partitions, nil
}

func (p *Pipeline) storeFragment(ctx context.Context, node directory.Node, shard []byte, i, r int, fileHash string) (*manifest.Fragment, error) {
	rawKey, err := crypto.RandomBytes(crypto.KeySize)
	if err != nil {
		return nil, err
	}
	salt, err := crypto.RandomBytes(crypto.FragmentSalt)
	if err != nil {
		return nil, err
	}
	effKey := crypto.DeriveFragmentKey(rawKey, salt)

	ct, iv, tag, err := crypto.Encrypt(effKey, shard)
	if err != nil {
		return nil, err
	}

	fragmentID := computeFragmentID(ct, rawKey, iv, i, r)
	checksum := hex.EncodeToString(crypto.SHA256(ct))

	resp, err := p.Transport.Store(ctx, node, transport.StoreRequest{
		FragmentID: fragmentID,
		Data:       base64.StdEncoding.EncodeToString(ct),
		Checksum:   checksum,
		Metadata: transport.FragmentMetadata{
			FileHash:        fileHash,
			PartitionIndex:  i,
			RedundancyIndex: r,
			DoubleEncrypted: true,
			Timestamp:       time.Now().UnixMilli(),
		},
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("pipeline: node %s rejected fragment %s", node.HostPort(), fragmentID)
	}

	return &manifest.Fragment{
		FragmentID:      fragmentID,
		RedundancyIndex: r,
		NodeID:          node.ID,
		NodeAddress:     node.HostPort(),
		Checksum:        checksum,
		Encryption: manifest.Encryption{
			Key:       base64.StdEncoding.EncodeToString(rawKey),
			IV:        base64.StdEncoding.EncodeToString(iv),
			Tag:       base64.StdEncoding.EncodeToString(tag),
			Salt:      base64.StdEncoding.EncodeToString(salt),
			Algorithm: "AES-256-GCM-LAYER2",
		},
	}, nil
}

// computeFragmentID hashes ciphertext, raw key, IV, and a wall-clock
// salted suffix together, exactly per spec.md §4.5 step 8. The
// wall-clock component is intentionally preserved rather than removed
// (see DESIGN.md's Open Question decisions): it only strengthens
// uniqueness and the spec asks for it verbatim.
func computeFragmentID(ct, rawKey, iv []byte, i, r int) string {
	suffix := fmt.Sprintf("%d-%d-%d", i, r, time.Now().UnixMilli())
	buf := make([]byte, 0, len(ct)+len(rawKey)+len(iv)+len(suffix))
	buf = append(buf, ct...)
	buf = append(buf, rawKey...)
	buf = append(buf, iv...)
	buf = append(buf, []byte(suffix)...)
	return hex.EncodeToString(crypto.SHA256(buf))
}
