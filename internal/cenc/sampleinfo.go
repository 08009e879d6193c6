package cenc

import (
	"fmt"

	"github.com/mohaanymo/veld/internal/mp4"
)

// SampleInfo is the per-sample IV and subsample map needed to decrypt one
// sample, built from a fragment's senc box (or defaulted from tenc's
// constant IV when senc is absent).
type SampleInfo struct {
	IV         []byte
	Subsamples []mp4.SubsampleEntry
}

// SampleInfoTable indexes SampleInfo by sample number within one fragment.
type SampleInfoTable struct {
	samples []SampleInfo
}

// NewSampleInfoTable builds a table from a fragment's senc sample list.
func NewSampleInfoTable(senc []mp4.SENCSample) *SampleInfoTable {
	t := &SampleInfoTable{samples: make([]SampleInfo, len(senc))}
	for i, s := range senc {
		t.samples[i] = SampleInfo{IV: s.IV, Subsamples: s.Subsamples}
	}
	return t
}

// Get returns the SampleInfo for sample index i.
func (t *SampleInfoTable) Get(i int) (SampleInfo, error) {
	if i < 0 || i >= len(t.samples) {
		return SampleInfo{}, fmt.Errorf("cenc: sample index %d out of range (count %d)", i, len(t.samples))
	}
	return t.samples[i], nil
}

// Len returns the number of samples in the table.
func (t *SampleInfoTable) Len() int { return len(t.samples) }
