// Package archive implements the two-level sector-indexed volume archive
// format (spec §4.4): ALD, the older single-volume-per-entry dialect, and
// DRI, the newer dialect where one entry's data can be shared by several
// volumes via a volume-bits mask. Both dialects share the same
// pointer-region / link-sector / data-region layout, 256-byte aligned
// throughout, so one Format-parameterized reader/writer pair serves both
// (grounded on original_source/common/ald.c and common/dri.c, which are
// near-identical apart from the link-sector encoding and DRI's trailing
// EOF marker).
package archive

import (
	"github.com/sirupsen/logrus"

	"github.com/kichikuou/sys3c/internal/sys3err"
)

// Format selects the archive dialect.
type Format int

const (
	// ALD is the original dialect: each entry belongs to exactly one
	// volume, named by the link sector's single volume-number byte.
	ALD Format = iota
	// DRI is the later dialect: a link sector entry's volume-number byte
	// names only the *preferred* volume to read it from, but the
	// entry's VolumeBits mask records every volume that carries an
	// identical copy, and the link sector ends with a 0x1A EOF marker
	// byte the ALD dialect does not have.
	DRI
)

// MaxVolume is the largest volume number DRI's volume-bits mask can name
// (bit 0 is unused; volumes are numbered from 1).
const MaxVolume = 31

const sectorSize = 256

// Entry is one archived resource, addressed by its 1-based ID (its index
// in the volume's pointer table).
type Entry struct {
	ID         int
	Data       []byte
	VolumeBits uint32 // bit (1<<volume) set for every volume carrying this entry
}

func (e *Entry) hasVolume(volume int) bool {
	return e != nil && e.VolumeBits&(1<<uint(volume)) != 0
}

// WriteVolume serializes the subset of entries belonging to volume into
// one archive file's bytes, per the given Format.
func WriteVolume(format Format, entries []*Entry, volume int) []byte {
	w := &sectorWriter{}

	ptrCount := 0
	for _, e := range entries {
		if e.hasVolume(volume) {
			ptrCount++
		}
	}

	sector := 0
	w.writePtr((ptrCount+2)*2, &sector)
	linkSize := len(entries) * 2
	if format == DRI {
		linkSize++ // trailing EOF byte
	}
	w.writePtr(linkSize, &sector)
	for _, e := range entries {
		if e.hasVolume(volume) {
			w.writePtr(len(e.Data), &sector)
		}
	}
	w.pad()

	writeLinkSector(format, w, entries, volume)
	if format == DRI {
		w.writeByte(0x1a)
	}
	w.pad()

	for _, e := range entries {
		if !e.hasVolume(volume) {
			continue
		}
		w.writeBytes(e.Data)
		w.pad()
	}

	return w.buf
}

// writeLinkSector emits the archive's global entry index: one (volume,
// within-volume-pointer-number) byte pair per entry ID. For ALD each entry
// names its one owning volume, so the sector is identical across every
// volume file of the same archive; for DRI an entry can live in several
// volumes, so the link sector names the *preferred* one (the volume
// currently being written, if it carries a copy, else the lowest-numbered
// volume that does), which can differ from one volume file to the next,
// while each volume's own running pointer count is tracked independently.
func writeLinkSector(format Format, w *sectorWriter, entries []*Entry, volume int) {
	linkCount := make([]int, MaxVolume+1)
	for _, e := range entries {
		vol := 0
		if e != nil {
			if format == ALD {
				vol = soleVolume(e.VolumeBits)
			} else {
				for j := 1; j <= MaxVolume; j++ {
					if e.VolumeBits&(1<<uint(j)) != 0 {
						linkCount[j]++
						if vol == 0 || j == volume {
							vol = j
						}
					}
				}
			}
		}
		if format == ALD && vol != 0 {
			linkCount[vol]++
		}
		w.writeByte(byte(vol))
		w.writeByte(byte(linkCount[vol]))
	}
}

// soleVolume returns the single volume number set in bits, or 0 if none
// (ALD entries carry exactly one bit).
func soleVolume(bits uint32) int {
	for j := 1; j <= MaxVolume; j++ {
		if bits&(1<<uint(j)) != 0 {
			return j
		}
	}
	return 0
}

// ReadVolume parses one archive file's bytes (belonging to volume) and
// merges its entries into into, which may be nil or have gaps. It returns
// the merged slice, indexed by ID-1.
//
// For the DRI dialect, an entry already present from another volume is
// checked for byte-identical content (spec's duplicate-entry invariant)
// and its VolumeBits gains this volume's bit; for ALD, IDs are assumed
// unique per volume and are simply overwritten.
func ReadVolume(format Format, into []*Entry, data []byte, volume int) ([]*Entry, error) {
	r := sectorReader{data: data}

	linkStart, err := r.sector(0)
	if err != nil {
		return nil, err
	}
	linkEnd, err := r.sector(1)
	if err != nil {
		return nil, err
	}
	if linkEnd < linkStart || linkEnd > len(data) {
		return nil, sys3err.New(sys3err.Structural, "archive: link sector offset out of range")
	}

	for off := linkStart; off+1 < linkEnd; off += 2 {
		volNr := int(data[off])
		ptrNr := int(data[off+1])
		if volNr != volume {
			continue
		}
		id := (off-linkStart)/2 + 1
		entryStart, err := r.sector(ptrNr)
		if err != nil {
			return nil, err
		}
		entryEnd, err := r.sector(ptrNr + 1)
		if err != nil {
			return nil, err
		}
		if entryEnd < entryStart || entryEnd > len(data) {
			return nil, sys3err.New(sys3err.Structural, "archive: entry %d extends beyond end of file", id)
		}
		entryData := data[entryStart:entryEnd]

		for id > len(into) {
			into = append(into, nil)
		}
		existing := into[id-1]
		switch {
		case existing == nil:
			into[id-1] = &Entry{ID: id, Data: append([]byte(nil), entryData...), VolumeBits: 1 << uint(volume)}
		case format == ALD:
			into[id-1] = &Entry{ID: id, Data: append([]byte(nil), entryData...), VolumeBits: 1 << uint(volume)}
		default:
			if !bytesEqual(existing.Data, entryData) {
				return nil, sys3err.New(sys3err.Structural, "archive: duplicate entry %d with differing content across volumes", id)
			}
			logrus.Debugf("archive: entry %d duplicated in volume %d, merging volume bits", id, volume)
			existing.VolumeBits |= 1 << uint(volume)
		}
	}
	return into, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sectorWriter accumulates an archive file's bytes; the running sector
// cursor used by writePtr is owned by the caller and passed in.
type sectorWriter struct {
	buf []byte
}

func (w *sectorWriter) writeByte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *sectorWriter) writeBytes(p []byte) {
	w.buf = append(w.buf, p...)
}

// writePtr advances sector by the number of 256-byte sectors size
// occupies, then emits the resulting 1-based sector number (sector+1) as
// a little-endian 16-bit pointer.
func (w *sectorWriter) writePtr(size int, sector *int) {
	*sector += (size + 0xff) >> 8
	n := *sector + 1
	w.writeByte(byte(n))
	w.writeByte(byte(n >> 8))
}

func (w *sectorWriter) pad() {
	for len(w.buf)&0xff != 0 {
		w.buf = append(w.buf, 0)
	}
}

// sectorReader resolves pointer-table indices to byte offsets.
type sectorReader struct {
	data []byte
}

// sector dereferences pointer-table slot index: reads the 2-byte
// little-endian sector number stored there and converts it to a byte
// offset, per ald_sector/dri_sector's (low<<8 | high<<16) - 256 encoding
// (equivalent to 256*(n-1) for the n that writePtr wrote).
func (r *sectorReader) sector(index int) (int, error) {
	off := index * 2
	if off+1 >= len(r.data) {
		return 0, sys3err.New(sys3err.Structural, "archive: pointer table index %d out of range", index)
	}
	n := int(r.data[off]) | int(r.data[off+1])<<8
	offset := (n - 1) * sectorSize
	if offset > len(r.data) {
		return 0, sys3err.New(sys3err.Structural, "archive: sector offset %d out of range", offset)
	}
	return offset, nil
}
