package theoravid

// PushCapturedFrame runs the embedder's raw camera frame through the
// extractor into planar Y'CbCr 4:2:0, publishes it to the local preview
// triple buffer, and encodes it. A keyframe is forced every gopSize frames.
// raw's concrete type is whatever the camera backend hands the embedder;
// this plug-in only ever touches it through FrameExtractor.
func (p *Plugin) PushCapturedFrame(raw any) error {
	s := p.self
	if s == nil {
		return nil // not yet connected
	}

	frame, err := s.extractor.Extract(raw)
	if err != nil {
		return err
	}
	s.preview.Write(frame)

	s.mu.Lock()
	defer s.mu.Unlock()

	keyframe := s.gopSize <= 0 || s.frameIdx%s.gopSize == 0
	data, ok, err := s.encoder.Encode(frame, keyframe)
	if err != nil {
		return err
	}
	s.frameIdx++
	if !ok {
		return nil
	}
	if keyframe {
		s.lastGranule = s.nextSeq
	}
	s.outgoing = &Packet{
		Bos:     !s.sentAny,
		Granule: s.lastGranule,
		SeqNo:   s.nextSeq,
		Data:    data,
	}
	s.sentAny = true
	s.nextSeq++
	return nil
}

// PullPreview returns the most recently captured local frame, for the
// embedder's own preview UI.
func (p *Plugin) PullPreview() (*Frame, bool) {
	if p.self == nil {
		return nil, false
	}
	return p.self.preview.Read()
}
