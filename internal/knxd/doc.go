// Package knxd runs the knxd daemon as a child of evbridge.
//
// knxd is the gateway between evbridge's KNX control bridge and the bus.
// When control.knx.knxd.managed is true, evbridge starts knxd with
// arguments derived from its own configuration, waits until knxd accepts
// TCP connections on the control gateway port, and restarts it if it
// dies.
//
// Example configuration:
//
//	control:
//	  knx:
//	    enabled: true
//	    gatewayIP: "127.0.0.1"
//	    gatewayPort: 6720
//	    knxd:
//	      managed: true
//	      binary: "/usr/bin/knxd"
//	      physicalAddress: "0.0.1"
//	      clientAddresses: "0.0.2:8"
//	      backend:
//	        type: "ipt"
//	        host: "192.168.1.10"
package knxd
