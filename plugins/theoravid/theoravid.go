// Package theoravid implements the video-sharing protocol module: capture
// callback → planar Y'CbCr 4:2:0 extraction → triple-buffered local preview
// → encode → single-slot outgoing packet, and on the receive side a
// per-remote dedicated decode thread feeding a triple-buffered decoded
// frame for the render hook to upload.
//
// Only the planar camera path is implemented; the 3-D-camera gateway
// variant of the original protocol is out of scope.
package theoravid

const Name = "TheoraVideo"

// EncoderConfig mirrors the video.theora* configuration keys: target
// bitrate in bits/second, an encoder-defined quality index, and the
// keyframe interval in frames.
type EncoderConfig struct {
	Bitrate int
	Quality int
	GopSize int
}

func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{Bitrate: 256000, Quality: 32, GopSize: 32}
}
