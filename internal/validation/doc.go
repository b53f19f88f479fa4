// Package validation provides pure checks for the values that configure
// the bus bridges: TCP ports, KNX group address strings and gateway
// endpoints.
//
// None of these functions hold state. They are used at startup, before any
// connection is attempted, so that a misconfigured bridge fails fast.
package validation
