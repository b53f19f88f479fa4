package knx

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DPT represents a KNX Datapoint Type identifier.
//
// Format: "major.minor" (e.g., "7.005", "14.019")
type DPT string

// Datapoint types used by the charge-now commands.
const (
	// DPTTimePeriodSec is a 2-byte unsigned time period in seconds.
	DPTTimePeriodSec DPT = "7.005"

	// DPTElectricCurrent is a 4-byte IEEE 754 float in amperes.
	DPTElectricCurrent DPT = "14.019"
)

const (
	dpt7Bytes  = 2
	dpt14Bytes = 4
)

// EncodeDPT7 encodes a 2-byte unsigned value.
func EncodeDPT7(value uint16) []byte {
	buf := make([]byte, dpt7Bytes)
	binary.BigEndian.PutUint16(buf, value)
	return buf
}

// DecodeDPT7 decodes a 2-byte unsigned value.
//
// Returns ErrDecodingFailed if fewer than 2 bytes are supplied.
func DecodeDPT7(data []byte) (uint16, error) {
	if len(data) < dpt7Bytes {
		return 0, fmt.Errorf("%w: DPT7 requires %d bytes, got %d", ErrDecodingFailed, dpt7Bytes, len(data))
	}
	return binary.BigEndian.Uint16(data), nil
}

// EncodeDPT14 encodes a 4-byte IEEE 754 single precision float.
func EncodeDPT14(value float32) []byte {
	buf := make([]byte, dpt14Bytes)
	binary.BigEndian.PutUint32(buf, math.Float32bits(value))
	return buf
}

// DecodeDPT14 decodes a 4-byte IEEE 754 single precision float.
//
// NaN and infinities are rejected with ErrDecodingFailed since no charge
// current can be derived from them.
func DecodeDPT14(data []byte) (float32, error) {
	if len(data) < dpt14Bytes {
		return 0, fmt.Errorf("%w: DPT14 requires %d bytes, got %d", ErrDecodingFailed, dpt14Bytes, len(data))
	}

	v := math.Float32frombits(binary.BigEndian.Uint32(data))
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return 0, fmt.Errorf("%w: DPT14 value is not finite", ErrDecodingFailed)
	}
	return v, nil
}
