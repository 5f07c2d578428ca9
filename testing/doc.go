// Package testing provides test utilities for eventproc.
//
// This package offers helpers for setting up test environments, particularly
// embedded NATS servers for integration testing. It follows Go's convention
// of providing testing utilities in a dedicated package (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - StartEmbeddedNATSCluster: 3-node NATS cluster, for exercising the Store
//     against a replicated JetStream backend
//   - CreateJetStreamKV: Convenience wrapper for KV bucket creation
//
// Example usage:
//
//	import (
//	    "testing"
//	    eptest "github.com/arloliu/eventproc/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := eptest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
