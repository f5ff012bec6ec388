// Package internaldefs holds the shared metric name and bucket tables used by
// the exporter packages. It exists so the Prometheus and OTel exporters agree
// on names without importing each other.
package internaldefs
