package archive

import "testing"

// invariant 1 / scenario 5: writing then reading a volume reproduces the
// original entries byte-for-byte, for both dialects.
func TestALDRoundTrip(t *testing.T) {
	entries := []*Entry{
		{ID: 1, Data: []byte("hello"), VolumeBits: 1 << 1},
		{ID: 2, Data: []byte("a longer payload that spans more than one sector, padded out with filler bytes to push past 256"), VolumeBits: 1 << 1},
		{ID: 3, Data: []byte("second volume entry"), VolumeBits: 1 << 2},
	}

	volA := WriteVolume(ALD, entries, 1)
	volB := WriteVolume(ALD, entries, 2)

	var got []*Entry
	got, err := ReadVolume(ALD, got, volA, 1)
	if err != nil {
		t.Fatal(err)
	}
	got, err = ReadVolume(ALD, got, volB, 2)
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if string(got[0].Data) != "hello" {
		t.Fatalf("entry 1 = %q", got[0].Data)
	}
	if string(got[2].Data) != "second volume entry" {
		t.Fatalf("entry 3 = %q", got[2].Data)
	}
}

// DRI entries can be shared across volumes via VolumeBits; reading both
// volumes back should merge into one entry whose VolumeBits has both
// bits set, without complaining about "duplicate" content since the
// bytes match.
func TestDRISharedEntryMergesVolumeBits(t *testing.T) {
	shared := &Entry{ID: 1, Data: []byte("shared across volumes"), VolumeBits: 1<<1 | 1<<2}
	entries := []*Entry{shared}

	volA := WriteVolume(DRI, entries, 1)
	volB := WriteVolume(DRI, entries, 2)

	var got []*Entry
	got, err := ReadVolume(DRI, got, volA, 1)
	if err != nil {
		t.Fatal(err)
	}
	got, err = ReadVolume(DRI, got, volB, 2)
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	if got[0].VolumeBits != 1<<1|1<<2 {
		t.Fatalf("VolumeBits = %b, want %b", got[0].VolumeBits, 1<<1|1<<2)
	}
	if string(got[0].Data) != "shared across volumes" {
		t.Fatalf("data = %q", got[0].Data)
	}
}

func TestDRIDuplicateEntryWithDifferentContentErrors(t *testing.T) {
	a := []*Entry{{ID: 1, Data: []byte("version A"), VolumeBits: 1 << 1}}
	b := []*Entry{{ID: 1, Data: []byte("version B"), VolumeBits: 1 << 2}}

	volA := WriteVolume(DRI, a, 1)
	volB := WriteVolume(DRI, b, 2)

	var got []*Entry
	got, err := ReadVolume(DRI, got, volA, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ReadVolume(DRI, got, volB, 2); err == nil {
		t.Fatal("expected duplicate-content error")
	}
}

func TestSectorAlignment(t *testing.T) {
	entries := []*Entry{{ID: 1, Data: []byte("x"), VolumeBits: 1 << 1}}
	vol := WriteVolume(ALD, entries, 1)
	if len(vol)%sectorSize != 0 {
		t.Fatalf("archive length %d is not sector-aligned", len(vol))
	}
}
