// Package lapp is the registry of applications a node can host or join.
//
// [Register] binds an application's concrete action and state types
// to an [Entry] that callers can drive without knowing those types:
// the host side completes the handshake, upgrades sessions, and runs a host engine;
// the client side upgrades a handshaken session, waits for the start signal,
// and runs a client engine.
// Operator input arrives as text lines, parsed by the application.
package lapp
