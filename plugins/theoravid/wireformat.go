package theoravid

import (
	"encoding/binary"
	"io"
)

// Packet is one encoded video frame on the wire: beginning-of-stream flag,
// the index of the most recent keyframe (granule position), and this
// stream's packet sequence number.
type Packet struct {
	Bos     bool
	Granule int64
	SeqNo   int64
	Data    []byte
}

// writeHeaders frames the encoder's stream-setup blob as <u32 size><bytes>,
// sent once during CONNECT_REQUEST so a peer without this plug-in can skip
// past it without desynchronising the framing (P7).
func writeHeaders(w io.Writer, headers []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(headers)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(headers)
	return err
}

func readHeaders(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// writePacket frames one tick's video block as <u8 present> and, if
// present, <u8 bos><i64 granule><i64 seq><u32 len><bytes>. pkt == nil means
// this endpoint produced no new encoded frame this tick.
func writePacket(w io.Writer, pkt *Packet) error {
	if pkt == nil {
		_, err := w.Write([]byte{0})
		return err
	}
	var hdr [1 + 1 + 8 + 8 + 4]byte
	hdr[0] = 1
	if pkt.Bos {
		hdr[1] = 1
	}
	binary.BigEndian.PutUint64(hdr[2:10], uint64(pkt.Granule))
	binary.BigEndian.PutUint64(hdr[10:18], uint64(pkt.SeqNo))
	binary.BigEndian.PutUint32(hdr[18:22], uint32(len(pkt.Data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(pkt.Data)
	return err
}

// readPacket is the inverse of writePacket; returns pkt == nil when this
// tick carried no video data for this endpoint.
func readPacket(r io.Reader) (*Packet, error) {
	var present [1]byte
	if _, err := io.ReadFull(r, present[:]); err != nil {
		return nil, err
	}
	if present[0] == 0 {
		return nil, nil
	}
	var hdr [1 + 8 + 8 + 4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	pkt := &Packet{
		Bos:     hdr[0] != 0,
		Granule: int64(binary.BigEndian.Uint64(hdr[1:9])),
		SeqNo:   int64(binary.BigEndian.Uint64(hdr[9:17])),
	}
	n := binary.BigEndian.Uint32(hdr[17:21])
	pkt.Data = make([]byte, n)
	if _, err := io.ReadFull(r, pkt.Data); err != nil {
		return nil, err
	}
	return pkt, nil
}
