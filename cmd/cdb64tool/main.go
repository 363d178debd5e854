// Command cdb64tool builds, inspects, and verifies CDB64 shard files and
// manifests (§4.A, §4.B).
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/ar-io/gateway-dataplane/pkg/cdb64"
	"github.com/ar-io/gateway-dataplane/pkg/roottx"
)

var version = "dev"

func main() {
	cmd := &cli.Command{
		Name:    "cdb64tool",
		Usage:   "Build, inspect, and verify CDB64 root-tx shards and manifests",
		Version: version,
		Commands: []*cli.Command{
			buildCommand(),
			inspectCommand(),
			verifyCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "cdb64tool:", err)
		os.Exit(1)
	}
}

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "Build sharded CDB64 files and a manifest from a records file",
		ArgsUsage: "<records.msgpack> <output-dir>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return fmt.Errorf("build requires <records.msgpack> and <output-dir>")
			}
			outDir := cmd.Args().Get(1)
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", outDir, err)
			}

			builder := roottx.NewBuilder(outDir)
			records, err := readRecordsFile(cmd.Args().Get(0))
			if err != nil {
				return err
			}
			for _, r := range records {
				if err := builder.Add(r.key, r.record); err != nil {
					return fmt.Errorf("add %x: %w", r.key, err)
				}
			}

			manifest, err := builder.Finalize()
			if err != nil {
				return fmt.Errorf("finalize: %w", err)
			}

			manifestPath := filepath.Join(outDir, "manifest.json")
			data, err := cdb64.SerializeManifest(manifest)
			if err != nil {
				return fmt.Errorf("serialize manifest: %w", err)
			}
			if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
				return fmt.Errorf("write manifest: %w", err)
			}

			fmt.Printf("wrote %d partitions, %d total records, manifest %s\n",
				len(manifest.Partitions), manifest.TotalRecords, manifestPath)
			return nil
		},
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the partitions and record counts in a manifest",
		ArgsUsage: "<manifest.json>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return fmt.Errorf("inspect requires <manifest.json>")
			}
			data, err := os.ReadFile(cmd.Args().Get(0))
			if err != nil {
				return err
			}
			manifest, err := cdb64.ParseManifest(data)
			if err != nil {
				return fmt.Errorf("parse manifest: %w", err)
			}

			partitions := append([]cdb64.Partition(nil), manifest.Partitions...)
			sort.Slice(partitions, func(i, j int) bool { return partitions[i].Prefix < partitions[j].Prefix })

			fmt.Printf("version=%d createdAt=%s totalRecords=%d partitions=%d\n",
				manifest.Version, manifest.CreatedAt, manifest.TotalRecords, len(partitions))
			for _, p := range partitions {
				fmt.Printf("  %s  records=%-8d size=%-10d sha256=%s  location=%s\n", p.Prefix, p.RecordCount, p.Size, p.SHA256, describeLocation(p))
			}
			return nil
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Validate a manifest's shape and cross-check partition files exist on disk",
		ArgsUsage: "<manifest.json> <shard-dir>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return fmt.Errorf("verify requires <manifest.json> and <shard-dir>")
			}
			data, err := os.ReadFile(cmd.Args().Get(0))
			if err != nil {
				return err
			}
			manifest, err := cdb64.ParseManifest(data)
			if err != nil {
				return fmt.Errorf("parse manifest: %w", err)
			}
			if !cdb64.ValidateManifest(manifest) {
				return fmt.Errorf("manifest failed shape validation")
			}

			shardDir := cmd.Args().Get(1)
			var missing []string
			var mismatched []string
			for _, p := range manifest.Partitions {
				if p.Location.Type != "file" {
					continue
				}
				path := filepath.Join(shardDir, p.Location.Filename)
				if _, err := os.Stat(path); err != nil {
					missing = append(missing, path)
					continue
				}
				if p.SHA256 == "" {
					continue
				}
				sum, err := fileSHA256(path)
				if err != nil {
					return fmt.Errorf("checksum %s: %w", path, err)
				}
				if sum != p.SHA256 {
					mismatched = append(mismatched, path)
				}
			}
			if len(missing) > 0 {
				return fmt.Errorf("%d referenced shard file(s) missing: %v", len(missing), missing)
			}
			if len(mismatched) > 0 {
				return fmt.Errorf("%d shard file(s) failed checksum verification: %v", len(mismatched), mismatched)
			}

			fmt.Printf("manifest OK: %d partitions verified against %s\n", len(manifest.Partitions), shardDir)
			return nil
		},
	}
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func describeLocation(p cdb64.Partition) string {
	switch p.Location.Type {
	case "file":
		return "file:" + p.Location.Filename
	case "http":
		return "http:" + p.Location.URL
	case "arweave-tx":
		return "arweave-tx:" + p.Location.TxID
	case "arweave-bundle-item":
		return fmt.Sprintf("arweave-bundle-item:%s@%d+%d", p.Location.TxID, p.Location.Offset, p.Location.Size)
	default:
		return string(p.Location.Type)
	}
}
