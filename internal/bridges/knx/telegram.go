package knx

import (
	"encoding/binary"
	"fmt"
	"time"
)

// knxd protocol message types.
const (
	// EIBOpenGroupCon opens a group socket for receiving group telegrams.
	// Format: type(2) + reserved(1) + write_only(1) + reserved(1)
	EIBOpenGroupCon uint16 = 0x0026

	// EIBGroupPacket carries group telegrams on a groupcon socket.
	// Received payload: src(2) + dst(2) + APDU(2+).
	EIBGroupPacket uint16 = 0x0027

	// EIBClose closes the knxd connection gracefully.
	EIBClose uint16 = 0x0006
)

// APCI (Application Protocol Control Information) codes.
const (
	// APCIRead is a group read request.
	APCIRead byte = 0x00

	// APCIResponse is a group read response.
	APCIResponse byte = 0x40

	// APCIWrite is a group write. Only writes carry charge-now commands.
	APCIWrite byte = 0x80
)

const (
	// knxdHeaderSize is the size of the knxd message header (size + type).
	knxdHeaderSize = 4

	// groupPacketHeaderSize is src(2) + dst(2) + TPCI(1) + APCI(1).
	groupPacketHeaderSize = 6

	// shortDataMask extracts the 6-bit inline value of a short APDU.
	shortDataMask = 0x3F

	// apciMask extracts the APCI bits of the second APDU byte.
	apciMask = 0xC0
)

// Telegram represents a KNX group telegram received from the bus.
type Telegram struct {
	// Source is the sender's individual address (e.g., "1.1.5").
	Source string

	// Destination is the target group address.
	Destination GroupAddress

	// APCI indicates the telegram type (read, response, or write).
	APCI byte

	// Data contains the DPT-encoded payload (empty for reads).
	Data []byte

	// Timestamp records when the telegram was received or created.
	Timestamp time.Time
}

// ParseTelegram parses a raw knxd group packet into a Telegram.
//
// The received format (EIB_OPEN_GROUPCON / EIB_GROUP_PACKET) is:
//
//	Byte 0-1: Source individual address (big-endian)
//	Byte 2-3: Destination group address (big-endian)
//	Byte 4:   TPCI (usually 0x00)
//	Byte 5:   APCI (upper 2 bits) | data (lower 6 bits) for short frames
//	Byte 6+:  Data bytes for long frames
func ParseTelegram(data []byte) (Telegram, error) {
	if len(data) < groupPacketHeaderSize {
		return Telegram{}, fmt.Errorf("%w: too short (%d bytes, need at least %d)", ErrInvalidTelegram, len(data), groupPacketHeaderSize)
	}

	source := formatIndividualAddress(binary.BigEndian.Uint16(data[0:2]))
	dest := GroupAddressFromUint16(binary.BigEndian.Uint16(data[2:4]))
	apci := data[5] & apciMask

	var payload []byte
	switch {
	case len(data) > groupPacketHeaderSize:
		payload = make([]byte, len(data)-groupPacketHeaderSize)
		copy(payload, data[groupPacketHeaderSize:])
	case apci == APCIWrite || apci == APCIResponse:
		payload = []byte{data[5] & shortDataMask}
	}

	return Telegram{
		Source:      source,
		Destination: dest,
		APCI:        apci,
		Data:        payload,
		Timestamp:   time.Now(),
	}, nil
}

// formatIndividualAddress converts a 16-bit individual address to "A.L.D" format.
func formatIndividualAddress(ia uint16) string {
	return fmt.Sprintf("%d.%d.%d", (ia>>12)&0x0F, (ia>>8)&0x0F, ia&0xFF)
}

// parseIndividualAddress converts "A.L.D" to its 16-bit form. Malformed
// input yields 0.
func parseIndividualAddress(s string) uint16 {
	var area, line, device uint16
	if _, err := fmt.Sscanf(s, "%d.%d.%d", &area, &line, &device); err != nil {
		return 0
	}
	return (area&0x0F)<<12 | (line&0x0F)<<8 | device&0xFF
}

// EncodeGroupPacket encodes the telegram in the receive layout that knxd
// delivers on a groupcon socket (source address included). Data longer
// than one byte, or a single byte above 0x3F, is sent as a long frame.
func (t Telegram) EncodeGroupPacket() []byte {
	short := len(t.Data) == 0 || (len(t.Data) == 1 && t.Data[0] <= shortDataMask)

	size := groupPacketHeaderSize
	if !short {
		size += len(t.Data)
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint16(buf[0:2], parseIndividualAddress(t.Source))
	binary.BigEndian.PutUint16(buf[2:4], t.Destination.ToUint16())
	buf[5] = t.APCI
	if short {
		if len(t.Data) == 1 {
			buf[5] |= t.Data[0] & shortDataMask
		}
		return buf
	}
	copy(buf[groupPacketHeaderSize:], t.Data)
	return buf
}

// IsWrite returns true if this is a group write telegram.
func (t Telegram) IsWrite() bool {
	return t.APCI == APCIWrite
}

// String returns a human-readable representation of the telegram.
func (t Telegram) String() string {
	apciStr := "UNKNOWN"
	switch t.APCI {
	case APCIRead:
		apciStr = "READ"
	case APCIResponse:
		apciStr = "RESPONSE"
	case APCIWrite:
		apciStr = "WRITE"
	}

	return fmt.Sprintf("Telegram{Src:%s, GA:%s, APCI:%s, Data:%X}", t.Source, t.Destination, apciStr, t.Data)
}

// NewWriteTelegram creates a group write telegram.
func NewWriteTelegram(dest GroupAddress, data []byte) Telegram {
	return Telegram{
		Destination: dest,
		APCI:        APCIWrite,
		Data:        data,
		Timestamp:   time.Now(),
	}
}

// EncodeKNXDMessage wraps a payload in the knxd message format.
//
//	Byte 0-1: Size of type + payload (big-endian, excludes the size field)
//	Byte 2-3: Message type (big-endian)
//	Byte 4+:  Payload
func EncodeKNXDMessage(msgType uint16, payload []byte) []byte {
	buf := make([]byte, knxdHeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(2+len(payload))) //nolint:gosec // bounded by small message sizes
	binary.BigEndian.PutUint16(buf[2:4], msgType)
	copy(buf[4:], payload)
	return buf
}

// ParseKNXDMessage parses a complete knxd message (size field included).
func ParseKNXDMessage(data []byte) (msgType uint16, payload []byte, err error) {
	if len(data) < knxdHeaderSize {
		return 0, nil, fmt.Errorf("%w: message too short (%d bytes)", ErrInvalidTelegram, len(data))
	}

	declaredSize := binary.BigEndian.Uint16(data[0:2])
	if int(declaredSize) != len(data)-2 {
		return 0, nil, fmt.Errorf("%w: size mismatch (declared %d, expected %d)",
			ErrInvalidTelegram, declaredSize, len(data)-2)
	}

	msgType = binary.BigEndian.Uint16(data[2:4])
	if len(data) > knxdHeaderSize {
		payload = data[knxdHeaderSize:]
	}

	return msgType, payload, nil
}
