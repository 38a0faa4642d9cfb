package agora

// decodeRemoteTick pops this tick's jitter-buffered frame for remote (there
// is exactly one sender per remoteState, so localSenderID is an internal
// constant rather than a negotiated id) and decodes it, running
// packet-loss concealment for a frame the jitter buffer reports missing.
func decodeRemoteTick(remote *remoteState) {
	remote.mu.Lock()
	defer remote.mu.Unlock()

	frames := remote.jb.Pop()
	for _, f := range frames {
		pcm := make([]float32, FrameSize)
		var (
			n   int
			err error
		)
		if f.Packet == nil {
			n, err = remote.decoder.DecodePLC(pcm)
		} else {
			n, err = remote.decoder.Decode(f.Packet, pcm)
		}
		if err != nil {
			continue
		}
		remote.pcm.Push(pcm[:n])
	}
}

// PullPCM returns the next decoded PCM frame for the given peer, for the
// embedder's playback callback to mix into the output buffer. ok is false
// when nothing is buffered yet (e.g. still priming).
func (p *Plugin) PullPCM(state any) (pcm []float32, ok bool) {
	remote, valid := state.(*remoteState)
	if !valid {
		return nil, false
	}
	remote.mu.Lock()
	defer remote.mu.Unlock()
	return remote.pcm.Pop()
}

// localSenderID is the fixed sender key used against a remoteState's
// single-stream jitter buffer; each peer gets its own remoteState, so
// there is never more than one sender multiplexed onto one buffer.
const localSenderID = 0
