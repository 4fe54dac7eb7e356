// Package discovery carries stack presence over mDNS/DNS-SD.
//
// A daemon whose presence is active registers one instance of
// ServiceType. Its TXT records hold the stack host, the presence nonce and
// the beacon TTL:
//
//	h=coap://192.168.1.20:5683
//	n=2882400018
//	ttl=60
//
// Advertiser implements transport.PresenceAnnouncer so the stack mirrors
// StartPresence and StopPresence onto mDNS. Browser watches for other
// daemons and reports their beacons, which the daemon injects into its
// stack's presence subscriptions.
package discovery
