package baggage

import (
	"fmt"
	"net/url"
	"strings"

	otelbaggage "go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
)

const (
	// HeaderName is the carrier key holding the W3C baggage string.
	HeaderName = "baggage"

	// RoutingKeyName is the reserved baggage entry carrying the routing key.
	RoutingKeyName = "sd-routing-key"
)

// RoutingKey extracts the routing key from the baggage header in carrier.
// The boolean is false when the carrier is nil, the header is empty or no
// entry names the routing key.
func RoutingKey(carrier propagation.TextMapCarrier) (key string, ok bool) {
	if carrier == nil {
		return "", false
	}

	// Carriers are supplied by the host engine; a misbehaving one must not
	// abort dispatch.
	defer func() {
		if recover() != nil {
			key, ok = "", false
		}
	}()

	return ParseRoutingKey(carrier.Get(HeaderName))
}

// ParseRoutingKey extracts the routing key from a raw baggage header value.
// The first matching entry wins. Entries without '=' or with an empty key
// are skipped.
func ParseRoutingKey(header string) (string, bool) {
	if strings.TrimSpace(header) == "" {
		return "", false
	}

	for _, entry := range strings.Split(header, ",") {
		// Drop properties
		if i := strings.IndexByte(entry, ';'); i >= 0 {
			entry = entry[:i]
		}

		name, value, found := strings.Cut(entry, "=")
		if !found {
			continue
		}

		name = strings.TrimSpace(name)
		if name == "" || name != RoutingKeyName {
			continue
		}

		value = strings.TrimSpace(value)
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		return value, true
	}

	return "", false
}

// Inject writes routingKey into the baggage header of carrier, keeping the
// other members already present. A header the baggage parser rejects is
// kept verbatim apart from any previous routing key entry.
func Inject(carrier propagation.TextMapCarrier, routingKey string) error {
	member, err := otelbaggage.NewMemberRaw(RoutingKeyName, routingKey)
	if err != nil {
		return fmt.Errorf("failed to build baggage member: %w", err)
	}

	raw := carrier.Get(HeaderName)
	bag, err := otelbaggage.Parse(raw)
	if err != nil {
		carrier.Set(HeaderName, replaceRaw(raw, member.String()))
		return nil
	}

	bag, err = bag.SetMember(member)
	if err != nil {
		return fmt.Errorf("failed to set baggage member: %w", err)
	}

	carrier.Set(HeaderName, bag.String())
	return nil
}

// replaceRaw drops routing key entries and blank entries from header and
// appends member.
func replaceRaw(header, member string) string {
	var kept []string
	for _, entry := range strings.Split(header, ",") {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		name, _, _ := strings.Cut(entry, "=")
		if i := strings.IndexByte(name, ';'); i >= 0 {
			name = name[:i]
		}
		if strings.TrimSpace(name) == RoutingKeyName {
			continue
		}
		kept = append(kept, entry)
	}
	return strings.Join(append(kept, member), ",")
}
