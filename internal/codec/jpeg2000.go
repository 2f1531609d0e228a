package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ChuLiYu/slidetiles/pkg/types"
)

// ============================================================================
// JPEG 2000 blocks (TIFF compression 33003 / 33005 / 34712)
// ============================================================================
//
// A JPEG 2000 block is either a raw codestream (SOC ... EOC) or a JP2 file
// whose "jp2c" box holds the codestream. This codec validates the main header,
// checks the decoded size against the caller's bound and hands the codestream
// to a Backend for the wavelet and entropy decoding. The default registry uses
// NativeBackend.
//
// ============================================================================

// Marker is a JPEG 2000 codestream marker code (ISO/IEC 15444-1 Annex A).
type Marker uint16

const (
	markerSOC Marker = 0xFF4F // start of codestream
	markerSIZ Marker = 0xFF51 // image and tile size
	markerEOC Marker = 0xFFD9 // end of codestream
)

var (
	// ErrBackendUnavailable is returned by a codec built without a backend.
	ErrBackendUnavailable = errors.New("jpeg2000: no decode backend installed")
	// ErrMalformedCodestream is returned for a block whose header cannot be parsed.
	ErrMalformedCodestream = errors.New("jpeg2000: malformed codestream")
)

var jp2Signature = []byte{0x00, 0x00, 0x00, 0x0C, 'j', 'P', ' ', ' ', 0x0D, 0x0A, 0x87, 0x0A}

// Component describes one image component from the SIZ segment.
type Component struct {
	BitDepth int
	Signed   bool
	XRsiz    int
	YRsiz    int
}

// Header is the parsed SIZ segment of a codestream.
type Header struct {
	Width, Height         int // reference grid extent minus image offset
	TileWidth, TileHeight int
	Components            []Component
}

// BytesPerSample is the widest component rounded up to whole bytes.
func (h Header) BytesPerSample() int {
	depth := 0
	for _, c := range h.Components {
		if c.BitDepth > depth {
			depth = c.BitDepth
		}
	}
	return (depth + 7) / 8
}

// DecodedSize is the number of bytes a full-resolution decode produces.
func (h Header) DecodedSize() int {
	return h.Width * h.Height * len(h.Components) * h.BytesPerSample()
}

// Backend performs the actual JPEG 2000 reconstruction of a codestream.
type Backend interface {
	DecodeCodestream(codestream []byte, hdr Header) ([]byte, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(codestream []byte, hdr Header) ([]byte, error)

func (f BackendFunc) DecodeCodestream(codestream []byte, hdr Header) ([]byte, error) {
	return f(codestream, hdr)
}

// JPEG2000 is the JPEG 2000 block codec.
type JPEG2000 struct {
	backend Backend
}

// NewJPEG2000 returns a codec that reconstructs blocks with backend. A nil
// backend still validates headers but fails every decode.
func NewJPEG2000(backend Backend) *JPEG2000 {
	return &JPEG2000{backend: backend}
}

func (*JPEG2000) ID() types.CodecID { return types.CodecJPEG2000 }

func (j *JPEG2000) Decode(input []byte, maxOutputSize int) ([]byte, error) {
	cs, err := Codestream(input)
	if err != nil {
		return nil, err
	}
	hdr, err := ParseHeader(cs)
	if err != nil {
		return nil, err
	}
	if !HasEOC(cs) {
		return nil, fmt.Errorf("%w: truncated, no EOC marker", ErrMalformedCodestream)
	}
	if maxOutputSize > 0 && hdr.DecodedSize() > maxOutputSize {
		return nil, fmt.Errorf("%w: %dx%dx%d needs %d bytes, bound is %d",
			ErrOutputTooLarge, hdr.Width, hdr.Height, len(hdr.Components), hdr.DecodedSize(), maxOutputSize)
	}
	if j.backend == nil {
		return nil, ErrBackendUnavailable
	}
	out, err := j.backend.DecodeCodestream(cs, hdr)
	if err != nil {
		return nil, fmt.Errorf("jpeg2000: %w", err)
	}
	if maxOutputSize > 0 && len(out) > maxOutputSize {
		out = out[:maxOutputSize]
	}
	return out, nil
}

// Codestream returns the raw codestream of a block, unwrapping a JP2 container.
func Codestream(input []byte) ([]byte, error) {
	if !bytes.HasPrefix(input, jp2Signature) {
		return input, nil
	}
	rest := input
	for len(rest) >= 8 {
		length := uint64(binary.BigEndian.Uint32(rest))
		boxType := string(rest[4:8])
		header := uint64(8)
		switch length {
		case 0:
			length = uint64(len(rest))
		case 1:
			if len(rest) < 16 {
				return nil, fmt.Errorf("%w: truncated box header", ErrMalformedCodestream)
			}
			length = binary.BigEndian.Uint64(rest[8:16])
			header = 16
		}
		if length < header || length > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: box %q has bad length %d", ErrMalformedCodestream, boxType, length)
		}
		if boxType == "jp2c" {
			return rest[header:length], nil
		}
		rest = rest[length:]
	}
	return nil, fmt.Errorf("%w: no jp2c box", ErrMalformedCodestream)
}

// ParseHeader reads the SOC marker and SIZ segment at the start of cs.
func ParseHeader(cs []byte) (Header, error) {
	if len(cs) < 4 || Marker(binary.BigEndian.Uint16(cs)) != markerSOC {
		return Header{}, fmt.Errorf("%w: missing SOC marker", ErrMalformedCodestream)
	}
	if Marker(binary.BigEndian.Uint16(cs[2:])) != markerSIZ {
		return Header{}, fmt.Errorf("%w: SIZ must follow SOC", ErrMalformedCodestream)
	}
	seg := cs[4:]
	if len(seg) < 38 {
		return Header{}, fmt.Errorf("%w: truncated SIZ segment", ErrMalformedCodestream)
	}
	lsiz := int(binary.BigEndian.Uint16(seg))
	if lsiz > len(seg) {
		return Header{}, fmt.Errorf("%w: SIZ length %d overruns block", ErrMalformedCodestream, lsiz)
	}
	u32 := func(off int) int { return int(binary.BigEndian.Uint32(seg[off:])) }
	xsiz, ysiz := u32(4), u32(8)
	xo, yo := u32(12), u32(16)
	csiz := int(binary.BigEndian.Uint16(seg[36:]))
	if xsiz <= xo || ysiz <= yo || csiz == 0 {
		return Header{}, fmt.Errorf("%w: empty image grid", ErrMalformedCodestream)
	}
	if lsiz != 38+3*csiz {
		return Header{}, fmt.Errorf("%w: SIZ length %d does not match %d components", ErrMalformedCodestream, lsiz, csiz)
	}
	hdr := Header{
		Width:      xsiz - xo,
		Height:     ysiz - yo,
		TileWidth:  u32(20),
		TileHeight: u32(24),
		Components: make([]Component, csiz),
	}
	for i := range hdr.Components {
		p := seg[38+3*i:]
		hdr.Components[i] = Component{
			BitDepth: int(p[0]&0x7F) + 1,
			Signed:   p[0]&0x80 != 0,
			XRsiz:    int(p[1]),
			YRsiz:    int(p[2]),
		}
	}
	return hdr, nil
}

// HasEOC reports whether cs ends with the end-of-codestream marker.
func HasEOC(cs []byte) bool {
	return len(cs) >= 2 && Marker(binary.BigEndian.Uint16(cs[len(cs)-2:])) == markerEOC
}
