package cheria

import (
	"encoding/binary"

	"github.com/vrhub/collab/wire"
)

// bufPipe wraps the outgoing batch buffer so local mutation methods below
// can reuse the same wire.Pipe marshalling as the wire-format readers.
func (s *State) bufPipe() *wire.Pipe {
	return wire.NewPipe(&s.outgoing, binary.BigEndian)
}

func (s *State) appendID(id uint16) error {
	p := s.bufPipe()
	return p.WriteUint32(uint32(id))
}

// CreateDevice registers a new local device and appends a CREATE_DEVICE
// message to the outgoing batch buffer.
func (s *State) CreateDevice(d *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Devices[d.ID] = d
	if err := s.appendID(MsgCreateDevice); err != nil {
		return err
	}
	p := s.bufPipe()
	if err := p.WriteUint32(d.ID); err != nil {
		return err
	}
	return d.WriteLayout(p)
}

// DestroyDevice removes a local device and appends a DESTROY_DEVICE
// message.
func (s *State) DestroyDevice(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Devices, id)
	if err := s.appendID(MsgDestroyDevice); err != nil {
		return err
	}
	return s.bufPipe().WriteUint32(id)
}

// CreateTool registers a new local tool, binds its slots, and appends a
// CREATE_TOOL message.
func (s *State) CreateTool(t *Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tools[t.ID] = t
	t.ApplyBindings(s.Devices, true)
	if err := s.appendID(MsgCreateTool); err != nil {
		return err
	}
	p := s.bufPipe()
	if err := p.WriteUint32(t.ID); err != nil {
		return err
	}
	return t.WriteLayout(p)
}

// DestroyTool unbinds and removes a local tool, appending a DESTROY_TOOL
// message.
func (s *State) DestroyTool(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.Tools[id]; ok {
		t.ApplyBindings(s.Devices, false)
		delete(s.Tools, id)
	}
	if err := s.appendID(MsgDestroyTool); err != nil {
		return err
	}
	return s.bufPipe().WriteUint32(id)
}

// FlushDeviceStates appends one DEVICE_STATES message carrying every local
// device whose cumulative update mask is non-zero, terminated by a
// zero-id sentinel, then clears each flushed device's mask.
func (s *State) FlushDeviceStates(masks map[uint32]uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(masks) == 0 {
		return nil
	}
	if err := s.appendID(MsgDeviceStates); err != nil {
		return err
	}
	p := s.bufPipe()
	for id, mask := range masks {
		if mask == NoChange {
			continue
		}
		d, ok := s.Devices[id]
		if !ok {
			continue
		}
		if err := p.WriteUint32(id); err != nil {
			return err
		}
		if err := p.WriteUint8(mask); err != nil {
			return err
		}
		if err := d.Write(mask, p); err != nil {
			return err
		}
		masks[id] = NoChange
	}
	return p.WriteUint32(0)
}

// NoChange is the zero update mask: no device fields changed since the
// last flush.
const NoChange uint8 = 0
