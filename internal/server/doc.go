// Package server exposes an optional HTTP status API: health, statistics,
// the effective configuration, and Prometheus metrics. It exists for tuning
// the gate and watching the pipeline; the typing loop works without it.
package server
