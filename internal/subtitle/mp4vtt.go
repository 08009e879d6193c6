package subtitle

import (
	"fmt"

	"github.com/mohaanymo/veld/internal/mp4"
)

// VTTFragmentParser decodes wvtt (mp4-boxed WebVTT) init and media segments
// into Cue values, keyed off the init segment's mdhd timescale.
type VTTFragmentParser struct {
	Timescale uint32
}

// ParseVTTInit reads an init segment, requiring a "wvtt" sample entry and
// an "mdhd" timescale to be present (mirroring the reference parser's
// saw_wvtt/timescale checks).
func ParseVTTInit(data []byte) (*VTTFragmentParser, error) {
	var sawWVTT bool
	var timescale uint32
	var haveTimescale bool

	p := mp4.NewParser().
		BaseBox("moov", mp4.Children).
		BaseBox("trak", mp4.Children).
		BaseBox("mdia", mp4.Children).
		FullBox("mdhd", func(box *mp4.ParsedBox) error {
			hdr, err := mp4.ParseMDHD(box.Reader, *box.Version)
			if err != nil {
				return err
			}
			timescale = hdr.Timescale
			haveTimescale = true
			return nil
		}).
		BaseBox("minf", mp4.Children).
		BaseBox("stbl", mp4.Children).
		FullBox("stsd", mp4.SampleDescription).
		BaseBox("wvtt", func(box *mp4.ParsedBox) error {
			sawWVTT = true
			return nil
		})

	if err := p.Parse(data, false, false); err != nil {
		return nil, fmt.Errorf("subtitle: parsing wvtt init segment: %w", err)
	}
	if !sawWVTT {
		return nil, fmt.Errorf("subtitle: wvtt box not found in init segment")
	}
	if !haveTimescale {
		return nil, fmt.Errorf("subtitle: missing timescale (mdhd box)")
	}
	return &VTTFragmentParser{Timescale: timescale}, nil
}

// ParseMedia decodes a moof+mdat media segment into cues, offsetting every
// cue's time range by periodStart seconds.
func (v *VTTFragmentParser) ParseMedia(data []byte, periodStart float64) (*Subtitles, error) {
	var baseTime uint64
	var sawTFDT, sawTRUN bool
	var defaultDuration *uint32
	var samples []mp4.TRUNSample
	var cues []Cue
	var parseErr error

	p := mp4.NewParser().
		BaseBox("moof", mp4.Children).
		BaseBox("traf", mp4.Children).
		FullBox("tfdt", func(box *mp4.ParsedBox) error {
			sawTFDT = true
			hdr, err := mp4.ParseTFDT(box.Reader, *box.Version)
			if err != nil {
				return err
			}
			baseTime = hdr.BaseMediaDecodeTime
			return nil
		}).
		FullBox("tfhd", func(box *mp4.ParsedBox) error {
			hdr, err := mp4.ParseTFHD(box.Reader, *box.Flags)
			if err != nil {
				return err
			}
			defaultDuration = hdr.DefaultSampleDuration
			return nil
		}).
		FullBox("trun", func(box *mp4.ParsedBox) error {
			sawTRUN = true
			hdr, err := mp4.ParseTRUN(box.Reader, *box.Version, *box.Flags)
			if err != nil {
				return err
			}
			samples = hdr.Samples
			return nil
		}).
		BaseBox("mdat", func(box *mp4.ParsedBox) error {
			if !sawTFDT && !sawTRUN {
				return fmt.Errorf("subtitle: neither tfdt nor trun present before mdat")
			}
			raw, err := box.Reader.ReadBytes(box.Reader.Remaining())
			if err != nil {
				return err
			}
			c, err := parseMdat(v.Timescale, periodStart, baseTime, defaultDuration, samples, raw)
			if err != nil {
				parseErr = err
				return nil
			}
			cues = append(cues, c...)
			return nil
		})

	if err := p.Parse(data, false, false); err != nil {
		return nil, fmt.Errorf("subtitle: parsing wvtt media segment: %w", err)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return &Subtitles{Cues: cues}, nil
}

func parseMdat(timescale uint32, periodStart float64, baseTime uint64, defaultDuration *uint32, presentations []mp4.TRUNSample, raw []byte) ([]Cue, error) {
	var cues []Cue
	currentTime := baseTime
	r := mp4.NewReader(raw)

	for _, pres := range presentations {
		duration := pres.SampleDuration
		if duration == nil {
			duration = defaultDuration
		}

		var startTime uint64
		if pres.SampleCompositionTimeOffset != nil {
			startTime = baseTime + uint64(*pres.SampleCompositionTimeOffset)
		} else {
			startTime = currentTime
		}

		var durationVal uint32
		if duration != nil {
			durationVal = *duration
		}
		currentTime = startTime + uint64(durationVal)

		totalSize := int64(0)
		for {
			payloadSize, err := r.ReadU32()
			if err != nil {
				return nil, fmt.Errorf("subtitle: reading payload size: %w", err)
			}
			totalSize += int64(payloadSize)

			payloadType, err := r.ReadU32()
			if err != nil {
				return nil, fmt.Errorf("subtitle: reading payload type: %w", err)
			}
			name := fourCCString(payloadType)

			var payload []byte
			remaining := int(payloadSize) - 8
			if remaining < 0 {
				remaining = 0
			}
			switch name {
			case "vttc":
				if remaining > 0 {
					payload, err = r.ReadBytes(remaining)
					if err != nil {
						return nil, fmt.Errorf("subtitle: reading vttc payload: %w", err)
					}
				}
			default:
				if err := r.Skip(remaining); err != nil {
					return nil, fmt.Errorf("subtitle: skipping %s payload: %w", name, err)
				}
			}

			if duration != nil && payload != nil {
				cue, err := parseVTTC(payload,
					periodStart+float64(startTime)/float64(timescale),
					periodStart+float64(currentTime)/float64(timescale))
				if err != nil {
					return nil, err
				}
				if cue != nil {
					cues = append(cues, *cue)
				}
			} else if duration == nil {
				return nil, fmt.Errorf("subtitle: wvtt sample duration unknown and no default found")
			}

			sampleSize := pres.SampleSize
			if sampleSize == nil || totalSize >= int64(*sampleSize) {
				break
			}
		}
	}

	if r.Remaining() > 0 {
		return nil, fmt.Errorf("subtitle: mdat contains trailing non-vtt data")
	}
	return cues, nil
}

// parseVTTC decodes a single "vttc" box (payl/iden/sttg children) into a
// Cue, returning nil when the cue has no payload text (an empty vttc).
func parseVTTC(data []byte, startTime, endTime float64) (*Cue, error) {
	var payload, id, settings string

	p := mp4.NewParser().
		BaseBox("payl", func(box *mp4.ParsedBox) error {
			b, err := box.Reader.ReadBytes(box.Reader.Remaining())
			if err != nil {
				return err
			}
			payload = string(b)
			return nil
		}).
		BaseBox("iden", func(box *mp4.ParsedBox) error {
			b, err := box.Reader.ReadBytes(box.Reader.Remaining())
			if err != nil {
				return err
			}
			id = string(b)
			return nil
		}).
		BaseBox("sttg", func(box *mp4.ParsedBox) error {
			b, err := box.Reader.ReadBytes(box.Reader.Remaining())
			if err != nil {
				return err
			}
			settings = string(b)
			return nil
		})

	if err := p.Parse(data, false, false); err != nil {
		return nil, fmt.Errorf("subtitle: parsing vttc box: %w", err)
	}
	if payload == "" {
		return nil, nil
	}
	return &Cue{ID: id, Payload: payload, Settings: settings, Start: startTime, End: endTime}, nil
}

func fourCCString(v uint32) string {
	return string([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
