package theoravid

// decodeLoop is the dedicated per-remote decode thread: it waits on
// remote's condition variable for a freshly arrived packet, decodes it
// outside the lock, and publishes the result to the triple-buffered
// decoded-frame slot the render hook drains. A decode error is contained
// here — this peer's video is skipped for one frame rather than tearing
// down the connection.
func decodeLoop(remote *remoteState) {
	defer close(remote.done)

	remote.mu.Lock()
	defer remote.mu.Unlock()
	for {
		for remote.latest == nil && !remote.stopped {
			remote.cond.Wait()
		}
		if remote.stopped {
			return
		}
		pkt := remote.latest
		remote.latest = nil
		remote.mu.Unlock()

		frame, err := remote.decoder.Decode(pkt.Data)
		if err == nil {
			remote.decoded.Write(frame)
		}

		remote.mu.Lock()
	}
}

// PullFrame returns the latest decoded frame for the given peer, for the
// render hook to upload as a texture. ok is false until the first packet
// has been decoded.
func (p *Plugin) PullFrame(state any) (*Frame, bool) {
	remote, valid := state.(*remoteState)
	if !valid {
		return nil, false
	}
	return remote.decoded.Read()
}
