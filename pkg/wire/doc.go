// Package wire defines the two encodings iotcon moves data with.
//
// # Representation JSON
//
// Representations travel between client and resource as JSON:
//
//	{"oc":[
//	  {"href":"/a/light",
//	   "rep":{"power":true,"level":42},
//	   "prop":{"rt":["core.light"],"if":["oic.if.baseline"]}},
//	  {"href":"/a/light/child", ...}
//	]}
//
// The parent is element 0 and each child follows as a flat element. Key order
// inside "rep" is preserved in both directions. Doubles always carry a
// decimal point or exponent so that Int and Double survive a round trip.
// Decoding is all-or-nothing.
//
// # IPC Payloads
//
// Calls, replies and signals between the client library and the daemon use
// CBOR (RFC 8949) with integer keys. The payload structs in this package
// mirror the tuples the daemon marshals: resource descriptor, query pairs,
// response, and the per-signal payloads.
package wire
