package mqttstatus

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// encodePayload renders a status value as an MQTT payload.
//
// Byte slices and strings are sent as-is, numbers and booleans in their
// shortest decimal form, times as RFC 3339 and Stringers via String.
// Anything else is JSON encoded.
func encodePayload(v any) []byte {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return x
	case string:
		return []byte(x)
	case bool:
		return strconv.AppendBool(nil, x)
	case int:
		return strconv.AppendInt(nil, int64(x), 10)
	case int8:
		return strconv.AppendInt(nil, int64(x), 10)
	case int16:
		return strconv.AppendInt(nil, int64(x), 10)
	case int32:
		return strconv.AppendInt(nil, int64(x), 10)
	case int64:
		return strconv.AppendInt(nil, x, 10)
	case uint:
		return strconv.AppendUint(nil, uint64(x), 10)
	case uint8:
		return strconv.AppendUint(nil, uint64(x), 10)
	case uint16:
		return strconv.AppendUint(nil, uint64(x), 10)
	case uint32:
		return strconv.AppendUint(nil, uint64(x), 10)
	case uint64:
		return strconv.AppendUint(nil, x, 10)
	case float32:
		return strconv.AppendFloat(nil, float64(x), 'f', -1, 32)
	case float64:
		return strconv.AppendFloat(nil, x, 'f', -1, 64)
	case time.Time:
		return []byte(x.UTC().Format(time.RFC3339))
	case fmt.Stringer:
		return []byte(x.String())
	}

	b, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprint(v))
	}
	return b
}
