// Package session assembles the synchronization core into a runnable
// client: one transport adapter, one dispatcher, one component registry,
// one compositor and one display controller per session.
//
// The embedding application registers render capabilities on the session's
// registry, starts the session, and reacts to the error channel. All event
// handling runs to completion per event on the transport's callback
// goroutine; the embedding application supplies the serialization point if
// it drives session methods from elsewhere.
package session
