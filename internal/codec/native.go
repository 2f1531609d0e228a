package codec

import (
	"bytes"
	"fmt"
	"image"

	"github.com/mrjoshuak/go-jpeg2000"
)

// NativeBackend reconstructs codestreams with the pure Go decoder from
// github.com/mrjoshuak/go-jpeg2000. Samples are interleaved per pixel: one
// byte per sample up to 8 bits, two big-endian bytes above that.
func NativeBackend() Backend { return BackendFunc(decodeNative) }

func decodeNative(cs []byte, hdr Header) ([]byte, error) {
	img, err := jpeg2000.Decode(bytes.NewReader(cs))
	if err != nil {
		return nil, err
	}
	return interleave(img, len(hdr.Components))
}

// interleave flattens img row by row, keeping components samples per pixel.
func interleave(img image.Image, components int) ([]byte, error) {
	b := img.Bounds()
	if components < 1 || components > 4 {
		return nil, fmt.Errorf("%d components not supported", components)
	}
	switch m := img.(type) {
	case *image.Gray:
		return pack(m.Pix, m.Stride, b, 1, 1), nil
	case *image.Gray16:
		return pack(m.Pix, m.Stride, b, 2, 2), nil
	case *image.RGBA:
		return pack(m.Pix, m.Stride, b, 4, components), nil
	case *image.RGBA64:
		return pack(m.Pix, m.Stride, b, 8, 2*components), nil
	}
	return nil, fmt.Errorf("decoded image %T not supported", img)
}

// pack copies the first keep bytes of every size-byte pixel in b.
func pack(pix []byte, stride int, b image.Rectangle, size, keep int) []byte {
	w, h := b.Dx(), b.Dy()
	out := make([]byte, 0, w*h*keep)
	for y := 0; y < h; y++ {
		row := pix[y*stride:]
		for x := 0; x < w; x++ {
			out = append(out, row[x*size:x*size+keep]...)
		}
	}
	return out
}
