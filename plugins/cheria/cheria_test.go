package cheria

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vrhub/collab/wire"
)

func TestDeviceMaskedTransmission(t *testing.T) {
	d := NewDevice(1, 0, 2, 1)
	d.BindButton(0, true)
	d.ButtonStates[0] = true
	d.ButtonStates[1] = true // unbound, must read back as false
	d.ValuatorStates[0] = 0.5
	// boundValuators[0] left false: unbound, must read back as zero.

	buf := &bytes.Buffer{}
	w := wire.NewPipe(buf, binary.BigEndian)
	require.NoError(t, w.WriteUint8(FullUpdate))
	require.NoError(t, d.Write(FullUpdate, w))

	mirror := NewDevice(1, 0, 2, 1)
	r := wire.NewPipe(buf, binary.BigEndian)
	require.NoError(t, mirror.Read(r))

	require.True(t, mirror.ButtonStates[0])
	require.False(t, mirror.ButtonStates[1], "unbound button must mask to zero")
	require.Equal(t, float32(0), mirror.ValuatorStates[0], "unbound valuator must mask to zero")
}

func TestCreateDestroyDeviceRoundTrip(t *testing.T) {
	sender := newState()
	d := NewDevice(7, 0, 1, 0)
	require.NoError(t, sender.CreateDevice(d))
	require.NoError(t, sender.DestroyDevice(7))

	receiver := newState()
	require.NoError(t, replayOutgoing(sender, receiver))

	_, stillPresent := receiver.Devices[7]
	require.False(t, stillPresent)
}

func TestToolBindingTogglesDeviceMask(t *testing.T) {
	s := newState()
	d := NewDevice(1, 0, 2, 0)
	require.NoError(t, s.CreateDevice(d))

	tool := &Tool{ID: 1, ClassName: "Pointer", ButtonSlots: []Slot{{DeviceID: 1, Index: 0}}}
	require.NoError(t, s.CreateTool(tool))
	require.True(t, d.boundButtons[0])
	require.False(t, d.boundButtons[1])

	require.NoError(t, s.DestroyTool(1))
	require.False(t, d.boundButtons[0])
}

// replayOutgoing frames sender's accumulated outgoing batch exactly as
// SendServerUpdate would and applies it to receiver, as a peer does on
// receipt of SERVER_UPDATE.
func replayOutgoing(sender, receiver *State) error {
	framed := &bytes.Buffer{}
	if err := writeBatch(framed, sender.outgoing.Bytes()); err != nil {
		return err
	}
	return applyBatch(receiver, framed)
}
