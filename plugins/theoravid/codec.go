package theoravid

import "github.com/cockroachdb/errors"

var errDecode = errors.New("theoravid: decoder rejected packet")

// Encoder compresses planar frames into a bitstream. Encode may buffer
// internally and return ok=false for a frame that produced no packet yet
// (the codec's own GOP/lookahead policy), mirroring how a real codec
// binding behaves; headers is the codec's stream-setup blob, available
// once after NewEncoder and sent exactly once over the wire.
type Encoder interface {
	Headers() []byte
	Encode(frame *Frame, keyframe bool) (data []byte, ok bool, err error)
}

// Decoder expands packets back into planar frames, primed by the sender's
// Headers() blob.
type Decoder interface {
	SetHeaders(headers []byte) error
	Decode(data []byte) (*Frame, error)
}

// passthroughEncoder and passthroughDecoder are the software fallback
// codec: frames are stored uncompressed, packed as Y then Cb then Cr. This
// keeps the protocol pipeline (framing, triple buffers, per-remote decode
// thread) fully exercisable without a real Theora binding; a real
// Encoder/Decoder pair takes their place through the Plugin's
// newEncoder/newDecoder fields.
type passthroughEncoder struct {
	cfg EncoderConfig
	gop int
}

func newPassthroughEncoder(cfg EncoderConfig) *passthroughEncoder {
	return &passthroughEncoder{cfg: cfg}
}

func (e *passthroughEncoder) Headers() []byte { return []byte("theoravid-passthrough-v1") }

func (e *passthroughEncoder) Encode(frame *Frame, keyframe bool) ([]byte, bool, error) {
	if frame == nil {
		return nil, false, nil
	}
	out := make([]byte, 0, len(frame.Y)+len(frame.Cb)+len(frame.Cr))
	out = append(out, frame.Y...)
	out = append(out, frame.Cb...)
	out = append(out, frame.Cr...)
	return out, true, nil
}

type passthroughDecoder struct {
	width, height int
}

func newPassthroughDecoder(width, height int) *passthroughDecoder {
	return &passthroughDecoder{width: width, height: height}
}

func (d *passthroughDecoder) SetHeaders(headers []byte) error { return nil }

func (d *passthroughDecoder) Decode(data []byte) (*Frame, error) {
	ySize := d.width * d.height
	cSize := (d.width / 2) * (d.height / 2)
	if len(data) != ySize+2*cSize {
		return nil, errDecode
	}
	return &Frame{
		Width:  d.width,
		Height: d.height,
		Y:      data[:ySize],
		Cb:     data[ySize : ySize+cSize],
		Cr:     data[ySize+cSize : ySize+2*cSize],
	}, nil
}
