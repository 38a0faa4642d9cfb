package agora

import (
	"github.com/cockroachdb/errors"
	"gopkg.in/hraban/opus.v2"
)

// errShortEncode is returned when a CBR encode produced a packet of
// unexpected size; the wire format has no per-packet length field, so
// every encode must yield exactly the negotiated packetSize.
var errShortEncode = errors.New("agora: encoder produced non-fixed-size packet")

// Encoder abstracts Opus encoding so the pipeline can be exercised against
// a stub in tests without a live libopus binding.
type Encoder interface {
	Encode(pcm []float32, data []byte) (int, error)
}

// Decoder abstracts Opus decoding, including packet-loss concealment for a
// nil packet (the jitter buffer's signal for a missing frame).
type Decoder interface {
	Decode(data []byte, pcm []float32) (int, error)
	DecodePLC(pcm []float32) (int, error)
}

// opusEncoder wraps opus.Encoder to satisfy Encoder. VBR is disabled so
// every encoded frame is exactly packetSize bytes, matching the wire
// format's fixed-size assumption (no per-packet length field).
type opusEncoder struct {
	enc        *opus.Encoder
	packetSize int
}

// NewOpusEncoder returns a mono CBR encoder at sampleRate/bitrate, matching
// the capture pipeline's fixed frame size.
func NewOpusEncoder(sampleRate, bitrate int) (Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, err
	}
	if err := enc.SetVBR(false); err != nil {
		return nil, err
	}
	return &opusEncoder{enc: enc, packetSize: PacketSize(bitrate, FrameSize)}, nil
}

func (o *opusEncoder) Encode(pcm []float32, data []byte) (int, error) {
	n, err := o.enc.EncodeFloat32(pcm, data)
	if err != nil {
		return 0, err
	}
	if n != o.packetSize {
		return 0, errShortEncode
	}
	return n, nil
}

type opusDecoder struct{ dec *opus.Decoder }

// NewOpusDecoder returns a mono decoder at sampleRate.
func NewOpusDecoder(sampleRate int) (Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, err
	}
	return &opusDecoder{dec: dec}, nil
}

func (o *opusDecoder) Decode(data []byte, pcm []float32) (int, error) {
	return o.dec.DecodeFloat32(data, pcm)
}

func (o *opusDecoder) DecodePLC(pcm []float32) (int, error) {
	return o.dec.DecodeFloat32(nil, pcm)
}
