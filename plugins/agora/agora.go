// Package agora implements the audio-sharing protocol module: capture,
// a denoise/gain/echo-cancellation chain, Opus encoding into a
// drop-tolerant send queue, and per-peer jitter-buffered decode into a
// ring the embedder's playback callback drains.
package agora

const (
	// SampleRate is the fixed capture/playback rate in Hz.
	SampleRate = 48000
	// FrameSize is 20 ms of mono audio at SampleRate.
	FrameSize = 960
	// DefaultBitrate is the Opus target bitrate in bits/second.
	DefaultBitrate = 32000
	// MaxPacketBytes is the largest Opus packet this plug-in will ever
	// encode or accept (RFC 6716 worst case).
	MaxPacketBytes = 1275

	// DefaultQueueDepth is the send-side ring depth, in frames.
	DefaultQueueDepth = 8
	// DefaultJitterDepth is the receive-side priming depth, in frames.
	DefaultJitterDepth = 3
	// DefaultPlaybackDepth is the decoded-PCM ring depth per remote, in frames.
	DefaultPlaybackDepth = 6

	// DefaultRolloffFactor controls how quickly a remote's voice attenuates
	// with distance from the listener's mouth position.
	DefaultRolloffFactor = 1.0
)

const Name = "Agora"

// PacketSize returns the fixed Opus packet size, in bytes, for a CBR
// encoder at the given bitrate and frame size: bitrate * frameSize /
// SampleRate / 8. Disabling VBR on the encoder makes every encoded frame
// exactly this many bytes, which the wire format relies on (no per-packet
// length field).
func PacketSize(bitrate, frameSize int) int {
	return bitrate * frameSize / SampleRate / 8
}
