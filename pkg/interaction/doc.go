// Package interaction is the dispatcher between IPC clients and the stack.
//
// Client-role operations (Get, Put, Post, Delete, ObserveStart,
// FindResource, SubscribePresence) issue a ticket, then hand the request to
// the stack. The ticket carries the requesting sender and its signal
// number. When the stack later delivers a completion on the worker
// goroutine, the ticket is looked up and the result is emitted to that
// sender as a signal named <PREFIX>_<signal number>:
//
//	Get       -> GET_<n>       wire.ResponseSignal
//	Put       -> PUT_<n>       wire.ResponseSignal
//	Post      -> POST_<n>      wire.ResponseSignal
//	Delete    -> DELETE_<n>    wire.ResponseSignal
//	Observe   -> OBSERVE_<n>   wire.ResponseSignal, once per notification
//	Find      -> RES_<n>       wire.FoundSignal, once per resource found
//	Presence  -> PRESENCE_<n>  wire.PresenceSignal
//
// A ticket resolves exactly once. Observe and presence tickets stay live
// until they are stopped; find tickets stay live for the discovery window.
// If the stack rejects a request synchronously the ticket is cancelled and
// no signal is ever emitted for it.
//
// Server-role operations route inbound requests for registered resources
// to their owners as REQ_<n> signals, track observers, and pass the
// owners' responses and notifications back to the stack. Notifying a
// resource that has no observers succeeds.
package interaction
