package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// registerRuntimeCollectors registers the Go runtime (go_goroutines,
// go_memstats_*, ...) and process (process_cpu_seconds_total, ...)
// collectors. Collectors that are already present are left alone.
func registerRuntimeCollectors(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			var alreadyRegErr prometheus.AlreadyRegisteredError
			if errors.As(err, &alreadyRegErr) {
				continue
			}
			return fmt.Errorf("failed to register runtime collector: %w", err)
		}
	}
	return nil
}
