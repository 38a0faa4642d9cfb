package cheria

import "github.com/vrhub/collab/wire"

// Slot references a device's button or valuator index, the unit a Tool's
// input assignment is built from.
type Slot struct {
	DeviceID uint32
	Index    uint32
}

// Tool mirrors ToolState: a named tool class plus the button/valuator slots
// it draws its input from. A tool's slots determine the per-device
// BindButton/BindValuator masking.
type Tool struct {
	ID        uint32
	ClassName string

	ButtonSlots   []Slot
	ValuatorSlots []Slot
}

// WriteLayout writes the tool's class name and full slot assignment,
// sent once on CREATE_TOOL.
func (t *Tool) WriteLayout(p *wire.Pipe) error {
	if err := p.WriteString(t.ClassName); err != nil {
		return err
	}
	if err := p.WriteUint32(uint32(len(t.ButtonSlots))); err != nil {
		return err
	}
	for _, s := range t.ButtonSlots {
		if err := writeSlot(p, s); err != nil {
			return err
		}
	}
	if err := p.WriteUint32(uint32(len(t.ValuatorSlots))); err != nil {
		return err
	}
	for _, s := range t.ValuatorSlots {
		if err := writeSlot(p, s); err != nil {
			return err
		}
	}
	return nil
}

// ReadToolLayout reads a tool's class name and slot assignment off the
// pipe, as sent by CREATE_TOOL.
func ReadToolLayout(id uint32, p *wire.Pipe) (*Tool, error) {
	name, err := p.ReadString()
	if err != nil {
		return nil, err
	}
	buttons, err := readSlots(p)
	if err != nil {
		return nil, err
	}
	valuators, err := readSlots(p)
	if err != nil {
		return nil, err
	}
	return &Tool{ID: id, ClassName: name, ButtonSlots: buttons, ValuatorSlots: valuators}, nil
}

// SkipToolLayout advances past a tool layout without constructing a Tool.
func SkipToolLayout(p *wire.Pipe) error {
	if _, err := p.ReadString(); err != nil {
		return err
	}
	if _, err := readSlots(p); err != nil {
		return err
	}
	if _, err := readSlots(p); err != nil {
		return err
	}
	return nil
}

func writeSlot(p *wire.Pipe, s Slot) error {
	if err := p.WriteUint32(s.DeviceID); err != nil {
		return err
	}
	return p.WriteUint32(s.Index)
}

func readSlot(p *wire.Pipe) (Slot, error) {
	deviceID, err := p.ReadUint32()
	if err != nil {
		return Slot{}, err
	}
	index, err := p.ReadUint32()
	if err != nil {
		return Slot{}, err
	}
	return Slot{DeviceID: deviceID, Index: index}, nil
}

func readSlots(p *wire.Pipe) ([]Slot, error) {
	n, err := p.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]Slot, n)
	for i := range out {
		s, err := readSlot(p)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// ApplyBindings sets the bound-input mask on every device a tool's slots
// reference, per the "per-tool button/valuator masking" design: adding a
// tool toggles mask bits on its assigned devices.
func (t *Tool) ApplyBindings(devices map[uint32]*Device, bound bool) {
	for _, s := range t.ButtonSlots {
		if d, ok := devices[s.DeviceID]; ok {
			d.BindButton(s.Index, bound)
		}
	}
	for _, s := range t.ValuatorSlots {
		if d, ok := devices[s.DeviceID]; ok {
			d.BindValuator(s.Index, bound)
		}
	}
}
