package subtitle

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildFullBox(fourcc string, version uint8, flags uint32, payload []byte) []byte {
	var buf bytes.Buffer
	size := uint32(8 + 4 + len(payload))
	binary.Write(&buf, binary.BigEndian, size)
	buf.WriteString(fourcc)
	vf := uint32(version)<<24 | flags&0x00FFFFFF
	binary.Write(&buf, binary.BigEndian, vf)
	buf.Write(payload)
	return buf.Bytes()
}

func buildBaseBox(fourcc string, payload []byte) []byte {
	var buf bytes.Buffer
	size := uint32(8 + len(payload))
	binary.Write(&buf, binary.BigEndian, size)
	buf.WriteString(fourcc)
	buf.Write(payload)
	return buf.Bytes()
}

func buildMDHD(timescale uint32) []byte {
	var payload bytes.Buffer
	payload.Write(make([]byte, 8)) // creation + modification time (version 0, 4 bytes each)
	binary.Write(&payload, binary.BigEndian, timescale)
	binary.Write(&payload, binary.BigEndian, uint32(0)) // duration
	binary.Write(&payload, binary.BigEndian, uint16(0x55c4)) // packed "und" language
	return buildFullBox("mdhd", 0, 0, payload.Bytes())
}

func TestParseVTTInitRequiresWVTTBox(t *testing.T) {
	mdhd := buildMDHD(1000)
	mdia := buildBaseBox("mdia", mdhd)
	trak := buildBaseBox("trak", mdia)
	moov := buildBaseBox("moov", trak)

	if _, err := ParseVTTInit(moov); err == nil {
		t.Fatal("expected error when wvtt box is missing")
	}
}

func TestParseVTTInitReadsTimescale(t *testing.T) {
	mdhd := buildMDHD(90000)
	wvtt := buildBaseBox("wvtt", nil)
	stsd := buildFullBox("stsd", 0, 0, append(u32(1), wvtt...))
	stbl := buildBaseBox("stbl", stsd)
	minf := buildBaseBox("minf", stbl)
	mdia := buildBaseBox("mdia", append(mdhd, minf...))
	trak := buildBaseBox("trak", mdia)
	moov := buildBaseBox("moov", trak)

	parser, err := ParseVTTInit(moov)
	if err != nil {
		t.Fatalf("ParseVTTInit: %v", err)
	}
	if parser.Timescale != 90000 {
		t.Fatalf("got timescale %d, want 90000", parser.Timescale)
	}
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func TestParseMediaDecodesVTTCCue(t *testing.T) {
	parser := &VTTFragmentParser{Timescale: 1000}

	payl := buildBaseBox("payl", []byte("Hello world"))
	// An mdat entry (u32 size, u32 "vttc" type, payload) has exactly the
	// same byte shape as a plain box, since a box is u32 size + 4-byte
	// fourcc + payload.
	vttc := buildBaseBox("vttc", payl)
	mdat := buildBaseBox("mdat", vttc)

	tfdt := buildFullBox("tfdt", 0, 0, u32(5000))

	var trunPayload bytes.Buffer
	binary.Write(&trunPayload, binary.BigEndian, uint32(1)) // sample_count
	binary.Write(&trunPayload, binary.BigEndian, uint32(2000)) // sample_duration (flags 0x100)
	trun := buildFullBox("trun", 0, 0x000100, trunPayload.Bytes())

	traf := buildBaseBox("traf", append(append([]byte{}, tfdt...), trun...))
	moof := buildBaseBox("moof", traf)

	segment := append(append([]byte{}, moof...), mdat...)

	subs, err := parser.ParseMedia(segment, 0)
	if err != nil {
		t.Fatalf("ParseMedia: %v", err)
	}
	if len(subs.Cues) != 1 {
		t.Fatalf("got %d cues, want 1", len(subs.Cues))
	}
	if subs.Cues[0].Payload != "Hello world" {
		t.Fatalf("payload = %q, want %q", subs.Cues[0].Payload, "Hello world")
	}
	if subs.Cues[0].Start != 5.0 {
		t.Fatalf("start = %v, want 5.0 (5000/1000)", subs.Cues[0].Start)
	}
	if subs.Cues[0].End != 7.0 {
		t.Fatalf("end = %v, want 7.0 ((5000+2000)/1000)", subs.Cues[0].End)
	}
}
