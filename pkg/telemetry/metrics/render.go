package metrics

import (
	"bytes"
	"fmt"

	"github.com/prometheus/common/expfmt"
)

// Render gathers the registry and returns the metrics as Prometheus
// text-format exposition. This backs callers that want the metrics as a
// string rather than over the scrape handler.
func (c *Collector) Render() (string, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("failed to gather metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := enc.Encode(family); err != nil {
			return "", fmt.Errorf("failed to encode metric family %q: %w", family.GetName(), err)
		}
	}
	return buf.String(), nil
}
