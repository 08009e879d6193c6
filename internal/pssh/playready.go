package pssh

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"unicode/utf16"
)

// playReadyHeader mirrors the subset of a PlayReady WRMHEADER document this
// package cares about: the <KID> elements nested under <PROTECTINFO>/<KIDS>
// (v4.x, key ID taken from the element text or its VALUE attribute) or the
// single <KID> element (text only) used by older header versions. Both
// shapes are handled by matching on local element name.
type playReadyHeader struct {
	XMLName xml.Name        `xml:"WRMHEADER"`
	Data    playReadyData   `xml:"DATA"`
}

type playReadyData struct {
	KID       string           `xml:"KID"`
	ProtectInfo protectInfoElem `xml:"PROTECTINFO"`
}

type protectInfoElem struct {
	KIDs []kidElem `xml:"KIDS>KID"`
	KID  string    `xml:"KID"`
}

type kidElem struct {
	Value   string `xml:",chardata"`
	ALGID   string `xml:"ALGID,attr"`
	VALUE   string `xml:"VALUE,attr"`
}

// parsePlayReady extracts key IDs from a PlayReady PSSH payload: a binary
// WRM header record (4-byte length, 2-byte record count, 2-byte record
// type, 2-byte record length, then UTF-16LE WRMHEADER XML).
func parsePlayReady(data []byte) ([]KeyID, error) {
	if len(data) < 10 {
		return nil, fmt.Errorf("playready: payload too short for WRM header")
	}

	recordCount := binary.LittleEndian.Uint16(data[4:6])
	pos := 6
	var kids []KeyID

	for i := uint16(0); i < recordCount; i++ {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("playready: truncated record header")
		}
		recordType := binary.LittleEndian.Uint16(data[pos : pos+2])
		recordLen := int(binary.LittleEndian.Uint16(data[pos+2 : pos+4]))
		pos += 4
		if pos+recordLen > len(data) {
			return nil, fmt.Errorf("playready: truncated record body")
		}
		body := data[pos : pos+recordLen]
		pos += recordLen

		const playReadyXMLRecord = 0x0001
		if recordType != playReadyXMLRecord {
			continue
		}

		xmlText, err := utf16LEToString(body)
		if err != nil {
			return nil, fmt.Errorf("playready: decoding utf-16 header: %w", err)
		}

		var hdr playReadyHeader
		if err := xml.Unmarshal([]byte(xmlText), &hdr); err != nil {
			return nil, fmt.Errorf("playready: parsing WRMHEADER xml: %w", err)
		}

		for _, raw := range collectKIDs(hdr) {
			value, err := decodePlayReadyKID(raw)
			if err != nil {
				continue
			}
			kids = append(kids, KeyID{System: SystemPlayReady, Value: value})
		}
	}

	return kids, nil
}

func collectKIDs(hdr playReadyHeader) []string {
	var out []string
	if hdr.Data.KID != "" {
		out = append(out, hdr.Data.KID)
	}
	if hdr.Data.ProtectInfo.KID != "" {
		out = append(out, hdr.Data.ProtectInfo.KID)
	}
	for _, k := range hdr.Data.ProtectInfo.KIDs {
		if k.Value != "" {
			out = append(out, k.Value)
		} else if k.VALUE != "" {
			out = append(out, k.VALUE)
		}
	}
	return out
}

// decodePlayReadyKID converts a base64 PlayReady KID (16 bytes, stored in
// mixed-endian GUID form: the first three fields little-endian, the last
// two big-endian) into plain big-endian hex matching the CENC default_KID
// convention used elsewhere in this module.
func decodePlayReadyKID(b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("playready: decoding base64 KID: %w", err)
	}
	if len(raw) != 16 {
		return "", fmt.Errorf("playready: KID is %d bytes, want 16", len(raw))
	}

	out := make([]byte, 16)
	out[0], out[1], out[2], out[3] = raw[3], raw[2], raw[1], raw[0]
	out[4], out[5] = raw[5], raw[4]
	out[6], out[7] = raw[7], raw[6]
	copy(out[8:], raw[8:])

	return hex.EncodeToString(out), nil
}

func utf16LEToString(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", fmt.Errorf("odd-length utf-16 data")
	}
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u16)), nil
}
