// Package cheria implements the input-device-sharing plug-in: a
// delta-encoded stream of abstract input devices and the pointing tools
// assigned to their buttons/valuators. Named and shaped after the original
// CheriaProtocol's DeviceState/ToolState, generalized onto the wire
// primitives in package wire.
package cheria

import "github.com/vrhub/collab/wire"

// Device update mask bits (DeviceState.UpdateMask in the original).
const (
	RayDirection uint8 = 1 << iota
	Transform
	Velocity
	Button
	Valuator

	FullUpdate = RayDirection | Transform | Velocity | Button | Valuator
)

// Device mirrors DeviceState: a tracked input device's 6-DoF pose plus ray,
// velocities, and digital/analog inputs. Per-tool masking zeroes any
// button/valuator index not actually bound to an exposed tool so a client
// never leaks unrelated local inputs to its peers.
type Device struct {
	ID uint32

	TrackType    int32
	NumButtons   uint32
	NumValuators uint32

	RayDirection wire.Vector
	RayStart     float32
	Transform    wire.ONTransform
	LinearVel    wire.Vector
	AngularVel   wire.Vector

	ButtonStates   []bool
	ValuatorStates []float32

	// boundButtons/boundValuators mark which indices are assigned to a
	// tool slot; unbound indices are always transmitted as zero/false.
	boundButtons   []bool
	boundValuators []bool
}

// NewDevice returns a device with the given layout and all inputs unbound.
func NewDevice(id uint32, trackType int32, numButtons, numValuators uint32) *Device {
	return &Device{
		ID:             id,
		TrackType:      trackType,
		NumButtons:     numButtons,
		NumValuators:   numValuators,
		ButtonStates:   make([]bool, numButtons),
		ValuatorStates: make([]float32, numValuators),
		boundButtons:   make([]bool, numButtons),
		boundValuators: make([]bool, numValuators),
	}
}

// BindButton marks a button index as assigned to a tool slot, allowing its
// state to be transmitted instead of masked to zero.
func (d *Device) BindButton(i uint32, bound bool) {
	if i < uint32(len(d.boundButtons)) {
		d.boundButtons[i] = bound
	}
}

// BindValuator marks a valuator index as assigned to a tool slot.
func (d *Device) BindValuator(i uint32, bound bool) {
	if i < uint32(len(d.boundValuators)) {
		d.boundValuators[i] = bound
	}
}

// WriteLayout writes the device's fixed layout (trackType, button/valuator
// counts), sent once on CREATE_DEVICE.
func (d *Device) WriteLayout(p *wire.Pipe) error {
	if err := p.WriteInt32(d.TrackType); err != nil {
		return err
	}
	if err := p.WriteUint32(d.NumButtons); err != nil {
		return err
	}
	return p.WriteUint32(d.NumValuators)
}

// ReadDeviceLayout reads a device layout off the pipe and returns a fresh
// Device with that layout, as sent by CREATE_DEVICE.
func ReadDeviceLayout(id uint32, p *wire.Pipe) (*Device, error) {
	trackType, err := p.ReadInt32()
	if err != nil {
		return nil, err
	}
	numButtons, err := p.ReadUint32()
	if err != nil {
		return nil, err
	}
	numValuators, err := p.ReadUint32()
	if err != nil {
		return nil, err
	}
	return NewDevice(id, trackType, numButtons, numValuators), nil
}

// SkipLayout advances past a device layout without constructing a Device,
// used by a peer that declined the device-sharing plug-in entirely (P7).
func SkipLayout(p *wire.Pipe) error {
	if _, err := p.ReadInt32(); err != nil {
		return err
	}
	if _, err := p.ReadUint32(); err != nil {
		return err
	}
	if _, err := p.ReadUint32(); err != nil {
		return err
	}
	return nil
}

// Write emits the device's state masked by writeMask, applying the
// per-tool button/valuator binding mask so unbound inputs read as zero.
func (d *Device) Write(writeMask uint8, p *wire.Pipe) error {
	if writeMask&RayDirection != 0 {
		if err := p.WriteVector(d.RayDirection); err != nil {
			return err
		}
		if err := p.WriteFloat32(d.RayStart); err != nil {
			return err
		}
	}
	if writeMask&Transform != 0 {
		if err := p.WriteONTransform(d.Transform); err != nil {
			return err
		}
	}
	if writeMask&Velocity != 0 {
		if err := p.WriteVector(d.LinearVel); err != nil {
			return err
		}
		if err := p.WriteVector(d.AngularVel); err != nil {
			return err
		}
	}
	if writeMask&Button != 0 {
		for i := range d.ButtonStates {
			v := d.ButtonStates[i] && d.boundButtons[i]
			b := uint8(0)
			if v {
				b = 1
			}
			if err := p.WriteUint8(b); err != nil {
				return err
			}
		}
	}
	if writeMask&Valuator != 0 {
		for i := range d.ValuatorStates {
			v := d.ValuatorStates[i]
			if !d.boundValuators[i] {
				v = 0
			}
			if err := p.WriteFloat32(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Read applies an incoming delta to a remote mirror of this device.
func (d *Device) Read(p *wire.Pipe) error {
	mask, err := p.ReadUint8()
	if err != nil {
		return err
	}
	if mask&RayDirection != 0 {
		v, err := p.ReadVector()
		if err != nil {
			return err
		}
		d.RayDirection = v
		s, err := p.ReadFloat32()
		if err != nil {
			return err
		}
		d.RayStart = s
	}
	if mask&Transform != 0 {
		t, err := p.ReadONTransform()
		if err != nil {
			return err
		}
		d.Transform = t
	}
	if mask&Velocity != 0 {
		lv, err := p.ReadVector()
		if err != nil {
			return err
		}
		d.LinearVel = lv
		av, err := p.ReadVector()
		if err != nil {
			return err
		}
		d.AngularVel = av
	}
	if mask&Button != 0 {
		for i := range d.ButtonStates {
			b, err := p.ReadUint8()
			if err != nil {
				return err
			}
			d.ButtonStates[i] = b != 0
		}
	}
	if mask&Valuator != 0 {
		for i := range d.ValuatorStates {
			v, err := p.ReadFloat32()
			if err != nil {
				return err
			}
			d.ValuatorStates[i] = v
		}
	}
	return nil
}
