package mp4

import (
	"fmt"
)

// Handler decodes one box. It receives the parsed box header and a reader
// scoped to exactly that box's payload, and may recurse into the same
// registry via Children or any of the other standalone helpers below.
type Handler func(box *ParsedBox) error

type boxKind int

const (
	kindBasic boxKind = iota
	kindFull
)

type handlerEntry struct {
	kind    boxKind
	handler Handler
}

// Parser is a registry of fourcc -> handler, built once and safe for
// concurrent, repeated use. Registering a handler never mutates traversal
// state on the Parser itself: per-Parse() traversal state (the "stop early"
// flag) lives on a walker created fresh inside Parse, not on Parser, so a
// single registry can be shared across many goroutines each decrypting a
// different fragment concurrently.
type Parser struct {
	handlers map[uint32]handlerEntry
}

// NewParser returns an empty registry.
func NewParser() *Parser {
	return &Parser{handlers: make(map[uint32]handlerEntry)}
}

// BaseBox registers a handler for a basic (non-versioned) box type.
func (p *Parser) BaseBox(fourcc string, h Handler) *Parser {
	p.handlers[fourccToUint32(fourcc)] = handlerEntry{kindBasic, h}
	return p
}

// FullBox registers a handler for a full box (has version+flags).
func (p *Parser) FullBox(fourcc string, h Handler) *Parser {
	p.handlers[fourccToUint32(fourcc)] = handlerEntry{kindFull, h}
	return p
}

func fourccToUint32(s string) uint32 {
	b := []byte(s)
	for len(b) < 4 {
		b = append(b, ' ')
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func uint32ToFourcc(v uint32) string {
	return string([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// walker carries the one piece of mutable traversal state ("stop parsing")
// through a recursive Parse call, separate from the shared, reusable Parser.
type walker struct {
	parser *Parser
	done   bool
}

// ParsedBox is handed to a registered Handler. Reader is scoped to exactly
// this box's payload; Version/Flags are non-nil only for full boxes.
type ParsedBox struct {
	Name         string
	Start        uint64 // absolute offset of the box header in the outermost buffer
	Size         uint64
	Version      *uint8
	Flags        *uint32
	Reader       *Reader
	Has64BitSize bool
	PartialOkay  bool
	StopOnPartial bool

	w *walker
}

// HeaderSize returns the number of bytes consumed by this box's header
// (size+type, plus 8 more if a 64-bit size field was used, plus 4 more if
// this is a full box).
func (b *ParsedBox) HeaderSize() int {
	n := 8
	if b.Has64BitSize {
		n += 8
	}
	if b.Version != nil {
		n += 4
	}
	return n
}

// Stop marks the current Parse() invocation as done; no further top-level
// or recursive boxes are visited after the current handler returns.
func (b *ParsedBox) Stop() {
	b.w.done = true
}

// Parse walks top-level boxes in data, dispatching to registered handlers.
//
// partialOkay: a box whose declared size overruns the buffer is truncated
// to the available bytes instead of erroring.
// stopOnPartial: a short read at any box boundary (not enough bytes left
// for a header, or for the declared box to fit) stops parsing cleanly
// instead of erroring; used when scanning a prefix of a live fragment.
func (p *Parser) Parse(data []byte, partialOkay, stopOnPartial bool) error {
	w := &walker{parser: p}
	r := NewReader(data)
	for r.Remaining() > 0 && !w.done {
		if err := parseNext(w, 0, r, partialOkay, stopOnPartial); err != nil {
			return err
		}
	}
	return nil
}

func parseNext(w *walker, absStart uint64, r *Reader, partialOkay, stopOnPartial bool) error {
	start := uint64(r.Position()) + absStart

	if stopOnPartial && r.Remaining() < 8 {
		w.done = true
		return nil
	}

	size32, err := r.ReadU32()
	if err != nil {
		if stopOnPartial {
			w.done = true
			return nil
		}
		return err
	}
	typ, err := r.ReadU32()
	if err != nil {
		if stopOnPartial {
			w.done = true
			return nil
		}
		return err
	}

	has64 := false
	size := uint64(size32)
	if size32 == 1 {
		if stopOnPartial && r.Remaining() < 8 {
			w.done = true
			return nil
		}
		size, err = r.ReadU64()
		if err != nil {
			if stopOnPartial {
				w.done = true
				return nil
			}
			return err
		}
		has64 = true
	} else if size32 == 0 {
		// extends to the end of the parent reader
		size = uint64(r.Remaining()) + uint64(r.Position()) - (start - absStart)
	}

	entry, known := w.parser.handlers[typ]

	var version *uint8
	var flags *uint32
	if known && entry.kind == kindFull {
		if stopOnPartial && r.Remaining() < 4 {
			w.done = true
			return nil
		}
		vf, err := r.ReadU32()
		if err != nil {
			if stopOnPartial {
				w.done = true
				return nil
			}
			return err
		}
		v := uint8(vf >> 24)
		f := vf & 0x00FFFFFF
		version = &v
		flags = &f
	}

	headerConsumed := uint64(r.Position())
	payloadLen := int64(size) - int64(headerConsumed-(start-absStart))
	if payloadLen < 0 {
		payloadLen = 0
	}

	if int(payloadLen) > r.Remaining() {
		if stopOnPartial {
			w.done = true
			return nil
		}
		if partialOkay {
			payloadLen = int64(r.Remaining())
		} else {
			return fmt.Errorf("mp4: box %q declares size %d beyond buffer", uint32ToFourcc(typ), size)
		}
	}

	sub, err := r.Sub(int(payloadLen))
	if err != nil {
		return err
	}

	if !known {
		// unregistered box types are simply skipped
		return nil
	}

	box := &ParsedBox{
		Name:          uint32ToFourcc(typ),
		Start:         start,
		Size:          size,
		Version:       version,
		Flags:         flags,
		Reader:        sub,
		Has64BitSize:  has64,
		PartialOkay:   partialOkay,
		StopOnPartial: stopOnPartial,
		w:             w,
	}

	if err := entry.handler(box); err != nil {
		return err
	}
	return nil
}

// Children recurses into every sub-box of box using the same registry.
func Children(box *ParsedBox) error {
	for box.Reader.Remaining() > 0 && !box.w.done {
		if err := parseNext(box.w, box.Start+uint64(box.HeaderSize()), box.Reader, box.PartialOkay, box.StopOnPartial); err != nil {
			return err
		}
	}
	return nil
}

// SampleDescription reads the stsd entry_count header then recurses into
// that many sub-boxes.
func SampleDescription(box *ParsedBox) error {
	count, err := box.Reader.ReadU32()
	if err != nil {
		return err
	}
	abs := box.Start + uint64(box.HeaderSize())
	for i := uint32(0); i < count && !box.w.done; i++ {
		if box.Reader.Remaining() == 0 {
			break
		}
		if err := parseNext(box.w, abs, box.Reader, box.PartialOkay, box.StopOnPartial); err != nil {
			return err
		}
	}
	return nil
}

// VisualSampleEntry skips the fixed-size visual sample entry preamble (78
// bytes, per the ISO/IEC 14496-12 VisualSampleEntry layout) then recurses.
func VisualSampleEntry(box *ParsedBox) error {
	if err := box.Reader.Skip(78); err != nil {
		return err
	}
	return Children(box)
}

// AudioSampleEntry skips the (version-dependent) fixed-size audio sample
// entry preamble then recurses.
func AudioSampleEntry(box *ParsedBox) error {
	if err := box.Reader.Skip(8); err != nil { // reserved + data_reference_index
		return err
	}
	version, err := box.Reader.ReadU16()
	if err != nil {
		return err
	}
	if err := box.Reader.Skip(6); err != nil { // revision + vendor
		return err
	}
	switch version {
	case 2:
		if err := box.Reader.Skip(48); err != nil {
			return err
		}
	default:
		if err := box.Reader.Skip(12); err != nil {
			return err
		}
		if version == 1 {
			if err := box.Reader.Skip(16); err != nil {
				return err
			}
		}
	}
	return Children(box)
}
