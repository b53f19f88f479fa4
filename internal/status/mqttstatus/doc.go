// Package mqttstatus publishes charger status values to an MQTT broker.
//
// Values are queued, not sent immediately. The first Publish while idle
// dials the broker; once the connection is up the whole queue is drained
// in one burst and the connection is closed again. If more values arrived
// during the drain another cycle follows straight away.
//
// Two limits keep a slow or unreachable broker from growing memory:
//
//   - Each topic is rate limited (one message per RateLimit); suppressed
//     values are dropped, and Publish still reports success.
//   - The queue is trimmed once it holds more than QueueCapacity+8
//     messages, by discarding the oldest QueueCapacity of them.
//
// Queued messages are not persisted across restarts.
package mqttstatus
