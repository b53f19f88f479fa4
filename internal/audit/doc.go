// Package audit records the charge commands and module releases the
// bridges hand to the charger, in the charge_commands and module_releases
// tables.
//
// Recorder wraps a charger host: every command is forwarded first and then
// written to the Repository, so a failing database never blocks charging.
package audit
