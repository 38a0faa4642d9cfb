package agora

// PushCapturedPCM runs one 20 ms capture frame through the denoise/gain/echo
// chain, and if the voice activity detector decides it's worth sending,
// encodes it and enqueues it on the send ring. Frames the VAD drops are
// never encoded, saving both CPU and bandwidth.
//
// pcm must be exactly FrameSize samples; the caller (the embedder's capture
// callback) owns the buffer and may reuse it once this call returns.
func (p *Plugin) PushCapturedPCM(pcm []float32) error {
	s := p.self
	if s == nil {
		return nil // not yet connected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.aec.Process(pcm)
	rms := s.gate.Process(pcm)
	if !s.vad.ShouldSend(rms) {
		return nil
	}
	s.agc.Process(pcm)

	data := make([]byte, s.packetSize)
	n, err := s.encoder.Encode(pcm, data)
	if err != nil {
		return err
	}

	s.queue.Push(data[:n])
	return nil
}

// FeedFarEnd supplies the most recently played-back mix as the echo
// canceller's reference signal. Call this from the playback callback right
// after filling the output buffer.
func (p *Plugin) FeedFarEnd(pcm []float32) {
	if p.self == nil {
		return
	}
	p.self.aec.FeedFarEnd(pcm)
}

// SetAECEnabled enables or disables echo cancellation on the capture chain.
func (p *Plugin) SetAECEnabled(enabled bool) {
	if p.self == nil {
		return
	}
	p.self.aec.SetEnabled(enabled)
}
