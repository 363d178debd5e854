package cdb64

import "testing"

func TestManifestRoundTrip(t *testing.T) {
	m := &Manifest{
		Version:      1,
		CreatedAt:    "2026-01-01T00:00:00Z",
		TotalRecords: 2,
		Partitions: []Partition{
			{Prefix: "00", Location: Location{Type: LocationFile, Filename: "00.cdb"}, RecordCount: 1, Size: 4096},
			{Prefix: "ff", Location: Location{Type: LocationArweaveBundleItem, TxID: "abc", Offset: 0, Size: 10}, RecordCount: 1, Size: 4096},
		},
	}

	data, err := SerializeManifest(m)
	if err != nil {
		t.Fatalf("SerializeManifest: %v", err)
	}

	got, err := ParseManifest(data)
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}

	if got.Version != m.Version || got.TotalRecords != m.TotalRecords || len(got.Partitions) != len(m.Partitions) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
	for i := range m.Partitions {
		if got.Partitions[i].Prefix != m.Partitions[i].Prefix {
			t.Fatalf("partition %d prefix mismatch: got %s want %s", i, got.Partitions[i].Prefix, m.Partitions[i].Prefix)
		}
	}
}

func TestParseManifestDropsUnknownFields(t *testing.T) {
	data := []byte(`{"version":1,"createdAt":"x","totalRecords":0,"partitions":[],"unknownField":"surprise"}`)
	m, err := ParseManifest(data)
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	out, err := SerializeManifest(m)
	if err != nil {
		t.Fatalf("SerializeManifest: %v", err)
	}
	if string(out) == "" {
		t.Fatal("empty serialization")
	}
	// unknownField must not resurface through Metadata (only explicit
	// "metadata" object is preserved).
	if m.Metadata != nil {
		t.Fatalf("expected nil Metadata, got %v", m.Metadata)
	}
}

func TestValidateManifestRejectsBadShapes(t *testing.T) {
	cases := []struct {
		name string
		m    *Manifest
	}{
		{"wrong version", &Manifest{Version: 2}},
		{"dup prefix", &Manifest{Version: 1, Partitions: []Partition{
			{Prefix: "aa", Size: 1, Location: Location{Type: LocationFile, Filename: "a"}},
			{Prefix: "aa", Size: 1, Location: Location{Type: LocationFile, Filename: "b"}},
		}}},
		{"uppercase prefix", &Manifest{Version: 1, Partitions: []Partition{
			{Prefix: "AA", Size: 1, Location: Location{Type: LocationFile, Filename: "a"}},
		}}},
		{"zero size", &Manifest{Version: 1, Partitions: []Partition{
			{Prefix: "aa", Size: 0, Location: Location{Type: LocationFile, Filename: "a"}},
		}}},
		{"bad bundle item offset", &Manifest{Version: 1, Partitions: []Partition{
			{Prefix: "aa", Size: 1, Location: Location{Type: LocationArweaveBundleItem, TxID: "t", Offset: -1, Size: 1}},
		}}},
		{"bad bundle item size", &Manifest{Version: 1, Partitions: []Partition{
			{Prefix: "aa", Size: 1, Location: Location{Type: LocationArweaveBundleItem, TxID: "t", Offset: 0, Size: 0}},
		}}},
	}

	for _, c := range cases {
		if ValidateManifest(c.m) {
			t.Errorf("%s: expected ValidateManifest to reject", c.name)
		}
	}
}

func TestCreateEmptyManifestValidates(t *testing.T) {
	m := CreateEmptyManifest(nil)
	if !ValidateManifest(m) {
		t.Fatal("CreateEmptyManifest produced an invalid manifest")
	}
}

func TestPrefixIndexInverse(t *testing.T) {
	for i := 0; i < 256; i++ {
		prefix := IndexToPrefix(i)
		idx, err := PrefixToIndex(prefix)
		if err != nil {
			t.Fatalf("PrefixToIndex(%s): %v", prefix, err)
		}
		if idx != i {
			t.Fatalf("PrefixToIndex(IndexToPrefix(%d)) = %d, want %d", i, idx, i)
		}
	}
}

func TestPartitionRouting(t *testing.T) {
	key := []byte{0xAB, 1, 2}
	if got := GetPartitionPrefix(key); got != "ab" {
		t.Fatalf("GetPartitionPrefix = %s, want ab", got)
	}
	if got := GetPartitionIndex(key); got != 0xAB {
		t.Fatalf("GetPartitionIndex = %d, want %d", got, 0xAB)
	}
	if got := GetPartitionPrefix(nil); got != "00" {
		t.Fatalf("GetPartitionPrefix(empty) = %s, want 00", got)
	}
}
