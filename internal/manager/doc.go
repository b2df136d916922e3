// Package manager owns the browser unit pool and brokers exclusive sessions
// to callers.
//
// A Manager moves through Uninitialized, Booted and Terminated. Every boot
// builds a fresh generation (registry, unit pool, collector and threshold
// watcher); Reboot replaces the generation rather than mutating it.
//
// IssueSession acquires a unit, then a session from that unit, runs the
// callback against the session's page and releases both tiers in reverse
// order, whatever the callback does.
package manager
