// Package knx implements the KNX charge-now control bridge.
//
// The bridge listens on a KNX installation via the knxd daemon and turns
// group writes on two configured group addresses into charge-now commands
// for the charging controller.
//
// # Architecture
//
//	┌─────────────┐  knxd groupcon  ┌─────────────┐   ChargeController   ┌──────────────┐
//	│  KNX Bus    │────────────────►│  Listener   │─────────────────────►│  Controller  │
//	│  (via knxd) │                 │  (this pkg) │                      │  (charger)   │
//	└─────────────┘                 └─────────────┘                      └──────────────┘
//
// # Commands
//
// Two group addresses are watched:
//
//   - Charge-now rate (DPT 14, 4-byte float, amps). Zero cancels the
//     running charge-now session. Any other value starts a session for the
//     current duration at the given amperage.
//   - Charge-now duration (DPT 7, 2-byte unsigned, seconds). Zero cancels
//     the session. Any other value becomes the duration used by the next
//     rate command.
//
// Only GroupValue_Write telegrams are acted on. Reads and responses on the
// same addresses are ignored.
//
// # Connection Handling
//
// The Listener owns a single goroutine that dials knxd, receives telegrams
// and dispatches them one at a time in receipt order. If the dial fails the
// loop waits 30 seconds before the next attempt; if an established
// connection breaks it waits 1 second. The loop only ends when its context
// is cancelled or Stop is called.
//
// # Group Addresses
//
// This package uses the 3-level format: Main/Middle/Sub (e.g., "1/2/3").
//
//	addr, err := knx.ParseGroupAddress("1/1/11")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(addr.String()) // "1/1/11"
//
// # References
//
//   - KNX Specification: https://www.knx.org
//   - knxd daemon: https://github.com/knxd/knxd
package knx
