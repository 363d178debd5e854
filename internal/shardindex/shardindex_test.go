package shardindex

import (
	"path/filepath"
	"testing"

	"github.com/ar-io/gateway-dataplane/pkg/cdb64"
)

func writeShard(t *testing.T, path string, kv map[string]string) {
	t.Helper()
	w, err := cdb64.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for k, v := range kv {
		if err := w.Add([]byte(k), []byte(v)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestGetProbesShardsInOrderFirstMatchWins(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "00.cdb")
	second := filepath.Join(dir, "01.cdb")

	writeShard(t, first, map[string]string{"a": "from-first"})
	writeShard(t, second, map[string]string{"a": "from-second", "b": "only-in-second"})

	r := NewFiles([]string{first, second})
	defer r.Close()

	v, ok, err := r.Get([]byte("a"))
	if err != nil || !ok || string(v) != "from-first" {
		t.Fatalf("Get(a) = %q %v %v, want from-first", v, ok, err)
	}

	v, ok, err = r.Get([]byte("b"))
	if err != nil || !ok || string(v) != "only-in-second" {
		t.Fatalf("Get(b) = %q %v %v, want only-in-second", v, ok, err)
	}

	_, ok, err = r.Get([]byte("missing"))
	if err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want absent", ok, err)
	}
}

func TestGetOnEmptyDirReturnsAbsentNotError(t *testing.T) {
	r := NewDir(filepath.Join(t.TempDir(), "does-not-exist"), Options{})
	defer r.Close()

	_, ok, err := r.Get([]byte("anything"))
	if err != nil || ok {
		t.Fatalf("Get on a nonexistent dir = ok=%v err=%v, want absent/no-error", ok, err)
	}
}

func TestGetScansDirectoryInLexicographicOrder(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, filepath.Join(dir, "00.cdb"), map[string]string{"k": "v0"})
	writeShard(t, filepath.Join(dir, "ff.cdb"), map[string]string{"k": "vff"})

	r := NewDir(dir, Options{})
	defer r.Close()

	v, ok, err := r.Get([]byte("k"))
	if err != nil || !ok || string(v) != "v0" {
		t.Fatalf("Get(k) = %q %v %v, want v0 (lexicographically first shard wins)", v, ok, err)
	}
}
