package pssh

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"testing"
	"unicode/utf16"
)

func buildBox(fourcc string, version uint8, flags uint32, payload []byte) []byte {
	var buf bytes.Buffer
	size := uint32(8 + 4 + len(payload))
	binary.Write(&buf, binary.BigEndian, size)
	buf.WriteString(fourcc)
	vf := uint32(version)<<24 | flags&0x00FFFFFF
	binary.Write(&buf, binary.BigEndian, vf)
	buf.Write(payload)
	return buf.Bytes()
}

func TestScanFindsV1PsshKeyIDs(t *testing.T) {
	kid, _ := hex.DecodeString("00112233445566778899aabbccddeeff")
	systemID, _ := hex.DecodeString(commonSystemIDHex)

	var payload bytes.Buffer
	payload.Write(systemID)
	binary.Write(&payload, binary.BigEndian, uint32(1)) // num_key_ids
	payload.Write(kid[:16])
	binary.Write(&payload, binary.BigEndian, uint32(0)) // pssh data size

	psshBox := buildBox("pssh", 1, 0, payload.Bytes())
	moov := rebuildBaseBox("moov", psshBox)

	result, err := Scan(moov)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.KeyIDs) != 1 {
		t.Fatalf("got %d key ids, want 1", len(result.KeyIDs))
	}
	if result.KeyIDs[0].Value != hex.EncodeToString(kid[:16]) {
		t.Fatalf("got key id %s, want %s", result.KeyIDs[0].Value, hex.EncodeToString(kid[:16]))
	}
	if result.KeyIDs[0].System != SystemCommon {
		t.Fatalf("got system %s, want common", result.KeyIDs[0].System)
	}
}

func rebuildBaseBox(fourcc string, payload []byte) []byte {
	var buf bytes.Buffer
	size := uint32(8 + len(payload))
	binary.Write(&buf, binary.BigEndian, size)
	buf.WriteString(fourcc)
	buf.Write(payload)
	return buf.Bytes()
}

func TestScanDecodesWidevinePayload(t *testing.T) {
	kid, _ := hex.DecodeString("00112233445566778899aabbccddeeff")
	wvSystemID, _ := hex.DecodeString(wideVineSystemIDHex)

	// Build a minimal WidevineCencHeader protobuf: field 2 (key_id), wire
	// type 2, length 16.
	var proto bytes.Buffer
	proto.WriteByte(byte(2<<3 | 2))
	proto.WriteByte(16)
	proto.Write(kid)

	var payload bytes.Buffer
	payload.Write(wvSystemID)
	binary.Write(&payload, binary.BigEndian, uint32(proto.Len()))
	payload.Write(proto.Bytes())

	psshBox := buildBox("pssh", 0, 0, payload.Bytes())
	moov := rebuildBaseBox("moov", psshBox)

	result, err := Scan(moov)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.KeyIDs) != 1 {
		t.Fatalf("got %d key ids, want 1", len(result.KeyIDs))
	}
	if result.KeyIDs[0].Value != hex.EncodeToString(kid) {
		t.Fatalf("got %s, want %s", result.KeyIDs[0].Value, hex.EncodeToString(kid))
	}
	if result.KeyIDs[0].System != SystemWideVine {
		t.Fatalf("got system %s, want widevine", result.KeyIDs[0].System)
	}
}

func TestParsePlayReadyExtractsKID(t *testing.T) {
	// raw is the mixed-endian GUID bytes PlayReady stores; decodePlayReadyKID
	// should convert this to plain big-endian hex.
	raw := []byte{0x04, 0x03, 0x02, 0x01, 0x06, 0x05, 0x08, 0x07, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	wantHex := "0102030405060708090a0b0c0d0e0f10"
	kidB64 := base64.StdEncoding.EncodeToString(raw)

	xmlDoc := "<WRMHEADER><DATA><KID>" + kidB64 + "</KID></DATA></WRMHEADER>"
	u16 := utf16.Encode([]rune(xmlDoc))
	body := make([]byte, len(u16)*2)
	for i, v := range u16 {
		binary.LittleEndian.PutUint16(body[i*2:], v)
	}

	var rec bytes.Buffer
	binary.Write(&rec, binary.LittleEndian, uint32(0))           // length placeholder
	binary.Write(&rec, binary.LittleEndian, uint16(1))           // record count
	binary.Write(&rec, binary.LittleEndian, uint16(0x0001))      // record type: WRM header
	binary.Write(&rec, binary.LittleEndian, uint16(len(body)))   // record length
	rec.Write(body)

	kids, err := parsePlayReady(rec.Bytes())
	if err != nil {
		t.Fatalf("parsePlayReady: %v", err)
	}
	if len(kids) != 1 {
		t.Fatalf("got %d key ids, want 1", len(kids))
	}
	if kids[0].Value != wantHex {
		t.Fatalf("got %s, want %s", kids[0].Value, wantHex)
	}
}
