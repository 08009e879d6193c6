package mp4

import (
	"encoding/binary"
	"testing"
)

// buildSidxPayload constructs a version-0 sidx box payload (everything
// after the 4-byte version+flags field the full-box framing already
// consumes), matching the wire layout ParseSIDX expects.
func buildSidxPayload(timescale uint32, refs [][2]uint32) []byte {
	buf := make([]byte, 0, 20+len(refs)*12)
	put32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	put16 := func(v uint16) {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], v)
		buf = append(buf, b[:]...)
	}

	put32(1)         // reference_ID
	put32(timescale)  // timescale
	put32(0)          // earliest_presentation_time (v0, 32-bit)
	put32(0)          // first_offset (v0, 32-bit)
	put16(0)          // reserved
	put16(uint16(len(refs)))
	for _, ref := range refs {
		put32(ref[0] | 1<<31) // referenced_size, with the reference_type bit set to exercise the mask
		put32(ref[1])         // subsegment_duration
		put32(1 << 31)        // starts_with_SAP=1, sap_type/delta_time=0
	}
	return buf
}

func TestParseSIDXDecodesReferencesAndMasksReservedBit(t *testing.T) {
	payload := buildSidxPayload(1000, [][2]uint32{
		{6000, 6000},
		{5800, 6000},
		{6200, 6000},
	})

	sidx, err := ParseSIDX(NewReader(payload), 0)
	if err != nil {
		t.Fatalf("ParseSIDX: %v", err)
	}
	if sidx.Timescale != 1000 {
		t.Errorf("Timescale = %d, want 1000", sidx.Timescale)
	}
	if len(sidx.References) != 3 {
		t.Fatalf("got %d references, want 3", len(sidx.References))
	}
	wantSizes := []uint32{6000, 5800, 6200}
	for i, ref := range sidx.References {
		if ref.ReferencedSize != wantSizes[i] {
			t.Errorf("reference %d size = %d, want %d (reserved bit must be masked off)", i, ref.ReferencedSize, wantSizes[i])
		}
		if ref.SubsegmentDuration != 6000 {
			t.Errorf("reference %d duration = %d, want 6000", i, ref.SubsegmentDuration)
		}
		if !ref.StartsWithSAP {
			t.Errorf("reference %d StartsWithSAP = false, want true", i)
		}
	}
}

func TestParseSIDXVersion1Uses64BitFields(t *testing.T) {
	buf := make([]byte, 0, 32)
	put32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	put64 := func(v uint64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}

	put32(1)      // reference_ID
	put32(90000)  // timescale
	put64(12345)  // earliest_presentation_time (v1, 64-bit)
	put64(999)    // first_offset (v1, 64-bit)
	buf = append(buf, 0, 0) // reserved
	buf = append(buf, 0, 0) // reference_count = 0

	sidx, err := ParseSIDX(NewReader(buf), 1)
	if err != nil {
		t.Fatalf("ParseSIDX: %v", err)
	}
	if sidx.EarliestPresentationTime != 12345 {
		t.Errorf("EarliestPresentationTime = %d, want 12345", sidx.EarliestPresentationTime)
	}
	if sidx.FirstOffset != 999 {
		t.Errorf("FirstOffset = %d, want 999", sidx.FirstOffset)
	}
	if len(sidx.References) != 0 {
		t.Errorf("got %d references, want 0", len(sidx.References))
	}
}

func TestParseSIDXTruncatedPayloadErrors(t *testing.T) {
	if _, err := ParseSIDX(NewReader([]byte{0, 0, 0, 1}), 0); err == nil {
		t.Fatal("expected error for a payload too short to contain a timescale")
	}
}
