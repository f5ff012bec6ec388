// Package otel exports authgrid engine metrics through an OpenTelemetry
// meter. Counters and histogram buckets are observed lazily from engine
// snapshots at collection time.
package otel
