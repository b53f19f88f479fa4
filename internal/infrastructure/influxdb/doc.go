// Package influxdb mirrors charger status values into InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Each status value
// becomes one point in the "charger_status" measurement, tagged with the
// device ID, with the status key as the field name.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.Status.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Publish("garage", "chargeNowAmps", 16)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched (batchSize, flushInterval); failures arrive through SetOnError.
package influxdb
