// Package inventory defines the proxy endpoint records consumed by the
// sharding engine. Endpoint lifecycle (credential issue, rotation,
// retirement) is owned by the proxy-inventory service; Meridian reads
// endpoints for selection and mutates their health counters as a result
// of probing and traffic outcomes.
package inventory
