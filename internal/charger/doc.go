// Package charger holds the charge-now state the bridges act on.
//
// A Controller receives charge commands from control modules (KNX) and
// reports its state to status outputs (MQTT, InfluxDB). A charge-now
// session has a rate in amps and an end time; when the end time passes the
// session expires and the rate drops back to zero.
//
// Status keys published for the configured device ID:
//
//	chargeNowAmps       current rate (0 when no session)
//	chargeNowTimeEnd    session end as Unix seconds (0 when no session)
//	chargeNowRemaining  seconds left in the session
//	chargeNowDuration   length of the session in seconds
package charger
