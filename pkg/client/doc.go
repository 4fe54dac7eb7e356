// Package client is the application API of iotcon.
//
// A Client connects to the iotcond daemon over its unix socket. Through it
// an application can:
//
//   - serve local resources (CreateResource, CreateLiteResource) and
//     answer their requests with a Response
//   - find remote resources and talk to them (FindResource,
//     NewRemoteResource, Get, Put, Post, Delete, ObserveStart)
//   - watch presence beacons (SubscribePresence, StartPresence)
//   - keep a cached copy of a remote resource or monitor whether it is
//     alive (StartCaching, StartMonitoring)
//
// Calls return once the daemon accepted them. Results arrive later on a
// callback, which runs on the client's signal goroutine in arrival order.
// Callbacks may call back into the Client.
//
// Example usage:
//
//	c, err := client.Open(ctx, client.Config{SocketPath: "/run/iotcon/iotcond.sock"})
//	defer c.Close()
//
//	c.FindResource(ctx, "", wire.ConnIPv4, "core.light", func(r *client.RemoteResource, err error) {
//		r.Get(ctx, nil, func(r *client.RemoteResource, resp *client.RemoteResponse) { ... })
//	})
package client
