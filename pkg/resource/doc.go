// Package resource is the directory of resources the daemon serves.
//
// A Registry maps stack handles to resource descriptors: the URI, the
// bound types and interfaces, the properties, the owning client and up to
// MaxChildren child links. Registration is all-or-nothing: the stack
// resource is created with the first type and the highest-priority
// interface, every further type and interface is bound with its own call,
// and any failure deletes the stack resource again.
package resource
