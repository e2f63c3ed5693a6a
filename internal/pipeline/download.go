package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/mmyneni/mystvault/internal/compress"
	"github.com/mmyneni/mystvault/internal/crypto"
	"github.com/mmyneni/mystvault/internal/erasure"
	"github.com/mmyneni/mystvault/internal/manifest"
	"github.com/mmyneni/mystvault/internal/mysterrors"
	"github.com/mmyneni/mystvault/internal/partition"
)

// DownloadOptions mirrors spec.md §4.6's input options.
type DownloadOptions struct {
	MasterPassword string
}

// Download parses the manifest at manifestPath, runs the full C6
// pipeline, and writes the recovered plaintext to outputPath.
func (p *Pipeline) Download(ctx context.Context, manifestPath, outputPath string, opts DownloadOptions) error {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("pipeline: read manifest: %w", err)
	}
	m, err := manifest.Unmarshal(raw)
	if err != nil {
		return err
	}

	if m.Security.MasterEncryption.PasswordProtected && opts.MasterPassword == "" {
		return &mysterrors.PasswordRequired{}
	}

	shards := p.fetchPartitions(ctx, m)

	D := len(m.Partitions)
	if m.ReedSolomon && m.ReedSolomonConfig != nil {
		D = m.ReedSolomonConfig.DataShards
	}

	processed, err := reconstruct(shards, m, D)
	if err != nil {
		return err
	}

	// Decompress (if applicable) before verifying encrypted_hash: the
	// hash was computed upload-side on the pre-compression ciphertext
	// (spec.md §4.5 step 3), so it can only match after reversing
	// compression. See DESIGN.md's Open Question decisions.
	ct := processed
	if m.Compressed {
		ct, err = compress.Decompress(processed)
		if err != nil {
			return fmt.Errorf("pipeline: decompress: %w", err)
		}
	} else if int64(len(ct)) > m.OriginalSize {
		// AES-256-GCM ciphertext is exactly as long as the plaintext;
		// any excess is zero-padding introduced by ceiling-chunked
		// partitioning/erasure reconstruction.
		ct = ct[:m.OriginalSize]
	}

	if hex.EncodeToString(crypto.SHA256(ct)) != m.Security.MasterEncryption.EncryptedHash {
		return &mysterrors.IntegrityFailure{Stage: "master_ciphertext"}
	}

	masterKey, err := resolveMasterKey(m, opts.MasterPassword)
	if err != nil {
		return err
	}

	masterIV, err := base64.StdEncoding.DecodeString(m.Security.MasterEncryption.IV)
	if err != nil {
		return fmt.Errorf("pipeline: decode master iv: %w", err)
	}
	masterTag, err := base64.StdEncoding.DecodeString(m.Security.MasterEncryption.Tag)
	if err != nil {
		return fmt.Errorf("pipeline: decode master tag: %w", err)
	}

	stage := "master_ciphertext"
	plaintext, err := crypto.Decrypt(masterKey, ct, masterIV, masterTag, stage)
	if err != nil {
		if m.Security.MasterEncryption.PasswordProtected {
			return &mysterrors.IncorrectPassword{}
		}
		return err
	}

	if hex.EncodeToString(crypto.SHA256(plaintext)) != m.FileHash {
		return &mysterrors.IntegrityFailure{Stage: "plaintext"}
	}

	if err := os.WriteFile(outputPath, plaintext, 0o644); err != nil {
		return fmt.Errorf("pipeline: write output: %w", err)
	}
	return nil
}

// fetchPartitions retrieves and layer-2-decrypts every partition in
// parallel (spec.md §5: "download fetches partitions in parallel").
// A partition that cannot be fetched or fails verification is left nil.
func (p *Pipeline) fetchPartitions(ctx context.Context, m *manifest.Manifest) [][]byte {
	shards := make([][]byte, len(m.Partitions))
	var wg sync.WaitGroup
	for idx, part := range m.Partitions {
		wg.Add(1)
		go func(idx int, part manifest.Partition) {
			defer wg.Done()
			shards[idx] = p.fetchPartition(ctx, part)
		}(idx, part)
	}
	wg.Wait()
	return shards
}

func (p *Pipeline) fetchPartition(ctx context.Context, part manifest.Partition) []byte {
	for _, frag := range part.Fragments {
		ct, err := p.fetchFragmentCiphertext(ctx, frag)
		if err != nil {
			log.Printf("pipeline: fragment %s on %s: %v", frag.FragmentID, frag.NodeAddress, err)
			continue
		}

		plaintext, err := decryptFragment(ct, frag)
		if err != nil {
			log.Printf("pipeline: fragment %s failed layer-2 decrypt: %v", frag.FragmentID, err)
			continue
		}
		if hex.EncodeToString(crypto.SHA256(plaintext)) != part.OriginalChecksum {
			log.Printf("pipeline: fragment %s shard checksum mismatch after decrypt", frag.FragmentID)
			continue
		}
		return plaintext
	}
	return nil
}

func (p *Pipeline) fetchFragmentCiphertext(ctx context.Context, frag manifest.Fragment) ([]byte, error) {
	resp, err := p.Transport.Retrieve(ctx, frag.NodeAddress, frag.FragmentID)
	if err != nil {
		return nil, err
	}
	ct, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if hex.EncodeToString(crypto.SHA256(ct)) != frag.Checksum {
		return nil, fmt.Errorf("ciphertext checksum mismatch")
	}
	return ct, nil
}

func decryptFragment(ct []byte, frag manifest.Fragment) ([]byte, error) {
	rawKey, err := base64.StdEncoding.DecodeString(frag.Encryption.Key)
	if err != nil {
		return nil, err
	}
	iv, err := base64.StdEncoding.DecodeString(frag.Encryption.IV)
	if err != nil {
		return nil, err
	}
	tag, err := base64.StdEncoding.DecodeString(frag.Encryption.Tag)
	if err != nil {
		return nil, err
	}
	salt, err := base64.StdEncoding.DecodeString(frag.Encryption.Salt)
	if err != nil {
		return nil, err
	}
	effKey := crypto.DeriveFragmentKey(rawKey, salt)
	return crypto.Decrypt(effKey, ct, iv, tag, "fragment")
}

// reconstruct rebuilds the processed (post-compression, pre-partition)
// buffer from the recovered shard set.
func reconstruct(shards [][]byte, m *manifest.Manifest, d int) ([]byte, error) {
	if m.ReedSolomon && m.ReedSolomonConfig != nil {
		p := m.ReedSolomonConfig.ParityShards
		codec, err := erasure.New(d, p)
		if err != nil {
			return nil, err
		}
		out, err := codec.Decode(shards)
		if err == nil {
			return out, nil
		}
		have := 0
		for i := 0; i < d && i < len(shards); i++ {
			if shards[i] != nil {
				have++
			}
		}
		if have >= d {
			return partition.Merge(shards[:d]), nil
		}
		return nil, err
	}

	for _, s := range shards {
		if s == nil {
			have := 0
			for _, s2 := range shards {
				if s2 != nil {
					have++
				}
			}
			return nil, &mysterrors.InsufficientShards{Have: have, Need: len(shards)}
		}
	}
	return partition.Merge(shards), nil
}

func resolveMasterKey(m *manifest.Manifest, password string) ([]byte, error) {
	me := m.Security.MasterEncryption
	if me.PasswordProtected {
		if me.Salt == nil {
			return nil, fmt.Errorf("pipeline: password-protected manifest missing salt")
		}
		salt, err := base64.StdEncoding.DecodeString(*me.Salt)
		if err != nil {
			return nil, fmt.Errorf("pipeline: decode master salt: %w", err)
		}
		return crypto.DeriveMasterKey(password, salt), nil
	}
	if me.Key == nil {
		return nil, fmt.Errorf("pipeline: manifest missing master key")
	}
	return base64.StdEncoding.DecodeString(*me.Key)
}
