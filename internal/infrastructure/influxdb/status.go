package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// StatusMeasurement is the measurement charger status points are written to.
const StatusMeasurement = "charger_status"

// Publish writes one status value as a point in StatusMeasurement, tagged
// with device_id, using key as the field name.
//
// It has the same shape as the MQTT status publisher so both can be
// registered as charger status outputs. Returns false once the client is
// closed or when the value has no field representation (nil).
//
// Example:
//
//	client.Publish("garage", "chargeNowAmps", 16)
func (c *Client) Publish(deviceID, key string, value any) bool {
	if !c.IsConnected() {
		return false
	}

	field, ok := fieldValue(value)
	if !ok {
		return false
	}

	point := write.NewPoint(
		StatusMeasurement,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{key: field},
		c.now(),
	)
	c.writeAPI.WritePoint(point)
	return true
}

// fieldValue converts a status value to an InfluxDB field type. Integers
// and floats keep their kind, times become Unix seconds, durations become
// seconds and Stringers are written as strings.
func fieldValue(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case bool, string, float64, int64, uint64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case time.Time:
		return x.Unix(), true
	case time.Duration:
		return x.Seconds(), true
	case []byte:
		return string(x), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}
