// Package inject delivers text fragments into whatever surface currently has
// input focus. Backends either run an external typing tool per fragment or
// paste through the clipboard with a synthesized key chord.
package inject
