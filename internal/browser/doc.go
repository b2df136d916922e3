// Package browser owns browser units: one external browser process plus a
// bounded pool of page sessions inside it.
//
// Backend abstracts how a browser is launched and how pages are opened.
// The production backend launches a Chromium executable through
// internal/process and attaches to it over CDP with playwright-go. Tests use
// browsertest.Backend, which starts a cheap placeholder process so that pids
// and signals stay real.
package browser
