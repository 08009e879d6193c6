// Package pssh scans an init segment for `pssh` boxes and extracts the key
// IDs protected content declares, recognizing the Widevine and PlayReady
// DRM systems by their well-known system IDs.
package pssh

import (
	"encoding/hex"
	"fmt"

	"github.com/mohaanymo/veld/internal/mp4"
)

// SystemID names a DRM system a pssh box belongs to.
type SystemID string

const (
	SystemCommon    SystemID = "common"
	SystemWideVine  SystemID = "widevine"
	SystemPlayReady SystemID = "playready"
	SystemOther     SystemID = "other"
)

const (
	commonSystemIDHex    = "1077efecc0b24d02ace33c1e52e2fb4b"
	playReadySystemIDHex = "9a04f07998404286ab92e65be0885f95"
	wideVineSystemIDHex  = "edef8ba979d64acea3c827dcd51d21ed"
)

// KeyID is one key ID found either in a pssh box's key_ID array (v1 boxes)
// or decoded from a system-specific pssh payload (Widevine/PlayReady).
type KeyID struct {
	System SystemID
	// RawSystemID is the 32-char hex system ID of the pssh box whose key_ID
	// array listed this key; empty for key IDs decoded from a payload.
	RawSystemID string
	// Value is the key ID in hex, exactly 32 chars (16 bytes).
	Value string
}

// UUID renders Value in the canonical 8-4-4-4-12 form.
func (k KeyID) UUID() string {
	v := k.Value
	if len(v) != 32 {
		return v
	}
	return fmt.Sprintf("%s-%s-%s-%s-%s", v[0:8], v[8:12], v[12:16], v[16:20], v[20:32])
}

// Pssh holds every distinct key ID and system ID a box scan found.
type Pssh struct {
	KeyIDs    []KeyID
	SystemIDs []string
}

// Scan walks data (an init segment's bytes) looking for `pssh` boxes inside
// `moov`/`moof` containers and decodes every one it finds.
func Scan(data []byte) (*Pssh, error) {
	result := &Pssh{}
	seen := map[string]bool{}

	p := mp4.NewParser().
		BaseBox("moov", mp4.Children).
		BaseBox("moof", mp4.Children).
		FullBox("pssh", func(box *mp4.ParsedBox) error {
			return parsePsshBox(box, result, seen)
		})

	if err := p.Parse(data, true, false); err != nil {
		return nil, fmt.Errorf("pssh: scanning boxes: %w", err)
	}
	return result, nil
}

func parsePsshBox(box *mp4.ParsedBox, out *Pssh, seen map[string]bool) error {
	if box.Version == nil || box.Flags == nil {
		return fmt.Errorf("pssh: box is missing version/flags")
	}
	if *box.Version > 1 {
		return nil
	}

	systemIDBytes, err := box.Reader.ReadBytes(16)
	if err != nil {
		return fmt.Errorf("pssh: reading system id: %w", err)
	}
	systemIDHex := hex.EncodeToString(systemIDBytes)
	out.SystemIDs = append(out.SystemIDs, systemIDHex)

	system := classifySystem(systemIDHex)

	if *box.Version > 0 {
		numKeyIDs, err := box.Reader.ReadU32()
		if err != nil {
			return fmt.Errorf("pssh: reading key id count: %w", err)
		}
		for i := uint32(0); i < numKeyIDs; i++ {
			kidBytes, err := box.Reader.ReadBytes(16)
			if err != nil {
				return fmt.Errorf("pssh: reading key id %d: %w", i, err)
			}
			addKeyID(out, seen, KeyID{System: system, RawSystemID: systemIDHex, Value: hex.EncodeToString(kidBytes)})
		}
	}

	dataSize, err := box.Reader.ReadU32()
	if err != nil {
		return fmt.Errorf("pssh: reading pssh data size: %w", err)
	}
	payload, err := box.Reader.ReadBytes(int(dataSize))
	if err != nil {
		return fmt.Errorf("pssh: reading pssh data: %w", err)
	}

	var kids []KeyID
	switch systemIDHex {
	case wideVineSystemIDHex:
		kids, err = parseWidevine(payload)
	case playReadySystemIDHex:
		kids, err = parsePlayReady(payload)
	}
	if err != nil {
		return fmt.Errorf("pssh: decoding %s payload: %w", system, err)
	}
	for _, k := range kids {
		addKeyID(out, seen, k)
	}

	return nil
}

func addKeyID(out *Pssh, seen map[string]bool, k KeyID) {
	if seen[k.Value] {
		return
	}
	seen[k.Value] = true
	out.KeyIDs = append(out.KeyIDs, k)
}

func classifySystem(systemIDHex string) SystemID {
	switch systemIDHex {
	case commonSystemIDHex:
		return SystemCommon
	case wideVineSystemIDHex:
		return SystemWideVine
	case playReadySystemIDHex:
		return SystemPlayReady
	default:
		return SystemOther
	}
}
