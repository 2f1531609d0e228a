package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ChuLiYu/slidetiles/pkg/types"
	"golang.org/x/image/tiff/lzw"
)

// LZW decodes TIFF compression 5 blocks: MSB-first codes, 8-bit literals and
// the "early change" code width switch TIFF writers use.
type LZW struct{}

// NewLZW returns the LZW codec.
func NewLZW() *LZW { return &LZW{} }

func (*LZW) ID() types.CodecID { return types.CodecLZW }

// Decode inflates input. Decoding stops once maxOutputSize bytes have been
// produced; strips are often padded past the block extent.
func (*LZW) Decode(input []byte, maxOutputSize int) ([]byte, error) {
	rc := lzw.NewReader(bytes.NewReader(input), lzw.MSB, 8)
	defer rc.Close()

	var src io.Reader = rc
	var out bytes.Buffer
	if maxOutputSize > 0 {
		out.Grow(maxOutputSize)
		src = io.LimitReader(rc, int64(maxOutputSize))
	}
	if _, err := io.Copy(&out, src); err != nil {
		return nil, fmt.Errorf("lzw: %w", err)
	}
	return out.Bytes(), nil
}
