package mp4

import "fmt"

// SidxReference is one entry of a sidx (segment index) box.
type SidxReference struct {
	ReferencedSize     uint32
	SubsegmentDuration uint32
	StartsWithSAP      bool
}

// SIDXBox is the segment index box: it lists byte offsets/durations of a
// sequence of sub-segments inside a single file.
type SIDXBox struct {
	ReferenceID        uint32
	Timescale          uint32
	EarliestPresentationTime uint64
	FirstOffset        uint64
	References         []SidxReference
}

// ParseSIDX decodes a sidx box payload.
func ParseSIDX(r *Reader, version uint8) (*SIDXBox, error) {
	b := &SIDXBox{}
	var err error
	b.ReferenceID, err = r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("sidx reference id: %w", err)
	}
	b.Timescale, err = r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("sidx timescale: %w", err)
	}
	if version == 0 {
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		b.EarliestPresentationTime = uint64(v)
		v, err = r.ReadU32()
		if err != nil {
			return nil, err
		}
		b.FirstOffset = uint64(v)
	} else {
		b.EarliestPresentationTime, err = r.ReadU64()
		if err != nil {
			return nil, err
		}
		b.FirstOffset, err = r.ReadU64()
		if err != nil {
			return nil, err
		}
	}
	if err := r.Skip(2); err != nil { // reserved
		return nil, err
	}
	count, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("sidx reference count: %w", err)
	}
	b.References = make([]SidxReference, 0, count)
	for i := uint16(0); i < count; i++ {
		a, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		dur, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		sapInfo, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		b.References = append(b.References, SidxReference{
			ReferencedSize:     a & 0x7fffffff,
			SubsegmentDuration: dur,
			StartsWithSAP:      sapInfo>>31 == 1,
		})
	}
	return b, nil
}
