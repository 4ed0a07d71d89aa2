// Package baggage reads and writes the routing key carried in W3C baggage.
//
// Work items carry a "baggage" header of comma-separated key=value entries,
// each optionally followed by ;-separated properties:
//
//	sd-routing-key=canary1;ttl=60, tenant=acme
//
// Only the reserved sd-routing-key entry is consumed. RoutingKey never
// fails: a missing header, a malformed entry or an absent key all read as
// "no key". Producers use Inject to stamp a key onto outgoing work.
package baggage
