package miio

import (
	"bytes"
	"crypto/md5" //nolint:gosec // mandated by the device protocol
	"encoding/binary"
	"fmt"
)

// Packet layout constants.
//
//	0      2      4          8           12       16            32
//	+------+------+----------+-----------+--------+-------------+----------
//	|magic |length| unknown  | device id | stamp  | md5 checksum| payload
//	+------+------+----------+-----------+--------+-------------+----------
const (
	packetMagic  uint16 = 0x2131
	headerSize          = 32
	maxPacketLen        = 0xFFFF

	// helloUnknown marks a handshake packet.
	helloUnknown uint32 = 0xFFFFFFFF
)

// Header is the fixed 32-byte packet header.
type Header struct {
	Length   uint16
	Unknown  uint32
	DeviceID uint32
	Stamp    uint32
	Checksum [16]byte
}

// IsHello reports whether the header belongs to a handshake packet.
func (h Header) IsHello() bool {
	return h.Unknown == helloUnknown || h.Length == headerSize
}

func (h Header) put(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], packetMagic)
	binary.BigEndian.PutUint16(buf[2:4], h.Length)
	binary.BigEndian.PutUint32(buf[4:8], h.Unknown)
	binary.BigEndian.PutUint32(buf[8:12], h.DeviceID)
	binary.BigEndian.PutUint32(buf[12:16], h.Stamp)
	copy(buf[16:32], h.Checksum[:])
}

// helloPacket returns the discovery/handshake request: magic, length 32,
// then 0xFF for every remaining byte.
func helloPacket() []byte {
	buf := bytes.Repeat([]byte{0xFF}, headerSize)
	binary.BigEndian.PutUint16(buf[0:2], packetMagic)
	binary.BigEndian.PutUint16(buf[2:4], headerSize)
	return buf
}

// encodePacket frames an encrypted payload for the device.
func encodePacket(deviceID, stamp uint32, token, ciphertext []byte) ([]byte, error) {
	total := headerSize + len(ciphertext)
	if total > maxPacketLen {
		return nil, fmt.Errorf("%w: payload of %d bytes too large", ErrMalformedPacket, len(ciphertext))
	}

	buf := make([]byte, total)
	Header{
		Length:   uint16(total), //nolint:gosec // bounded above
		DeviceID: deviceID,
		Stamp:    stamp,
	}.put(buf)
	copy(buf[16:32], token)
	copy(buf[headerSize:], ciphertext)

	sum := checksum(buf, token)
	copy(buf[16:32], sum[:])
	return buf, nil
}

// decodePacket splits a datagram into header and payload.
func decodePacket(data []byte) (Header, []byte, error) {
	if len(data) < headerSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes is shorter than a header", ErrMalformedPacket, len(data))
	}
	if m := binary.BigEndian.Uint16(data[0:2]); m != packetMagic {
		return Header{}, nil, fmt.Errorf("%w: bad magic 0x%04x", ErrMalformedPacket, m)
	}

	h := Header{
		Length:   binary.BigEndian.Uint16(data[2:4]),
		Unknown:  binary.BigEndian.Uint32(data[4:8]),
		DeviceID: binary.BigEndian.Uint32(data[8:12]),
		Stamp:    binary.BigEndian.Uint32(data[12:16]),
	}
	copy(h.Checksum[:], data[16:32])

	if int(h.Length) != len(data) {
		return Header{}, nil, fmt.Errorf("%w: length field %d, datagram %d", ErrMalformedPacket, h.Length, len(data))
	}
	return h, data[headerSize:], nil
}

// verifyChecksum checks a full datagram against the token.
func verifyChecksum(data, token []byte) bool {
	if len(data) < headerSize {
		return false
	}
	want := checksum(data, token)
	return bytes.Equal(want[:], data[16:32])
}

// checksum is md5(header[0:16] || token || payload).
func checksum(data, token []byte) [16]byte {
	h := md5.New() //nolint:gosec // mandated by the device protocol
	h.Write(data[0:16])
	h.Write(token)
	h.Write(data[headerSize:])
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}
