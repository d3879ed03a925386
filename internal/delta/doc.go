// Package delta derives the newly spoken portion of an incremental
// transcript relative to the previous one.
package delta
