package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mercator-hq/ganymede/pkg/state"
)

// ProbeFunc checks one external dependency. It returns nil if the
// dependency is reachable, or an error describing the problem.
type ProbeFunc func(ctx context.Context) error

// Probe is a named dependency check.
type Probe struct {
	Name  string
	Check ProbeFunc
}

// StoreProbe probes the state store with a cheap read. A missing key is a
// healthy outcome; only transport or storage failures count against the
// dependency.
func StoreProbe(store state.Store) Probe {
	return Probe{
		Name: "state_store",
		Check: func(ctx context.Context) error {
			_, err := store.Get(ctx, "system:halt")
			var notFound *state.NotFoundError
			if err == nil || errors.As(err, &notFound) {
				return nil
			}
			return err
		},
	}
}

// HTTPProbe probes an HTTP endpoint. Any 2xx or 3xx response is healthy.
func HTTPProbe(name, url string) Probe {
	client := &http.Client{}
	return Probe{
		Name: name,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return fmt.Errorf("probe %s returned status %d", name, resp.StatusCode)
			}
			return nil
		},
	}
}

// runProbe executes a probe under a hard timeout. A probe that does not
// answer in time counts as failed, never as success by default.
func runProbe(ctx context.Context, probe Probe, timeout time.Duration) DependencyHealth {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	errChan := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("probe panicked: %v", r)
			}
		}()
		errChan <- probe.Check(probeCtx)
	}()

	result := DependencyHealth{Name: probe.Name, CheckedAt: start}
	select {
	case err := <-errChan:
		result.LatencyMs = float64(time.Since(start)) / float64(time.Millisecond)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Up = true
		}
	case <-probeCtx.Done():
		result.LatencyMs = float64(time.Since(start)) / float64(time.Millisecond)
		result.Error = "probe timeout"
	}
	return result
}
