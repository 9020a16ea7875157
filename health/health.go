// Package health exposes an App's lifecycle state as liveness and readiness
// checks.
package health

import (
	"fmt"

	"github.com/exceptionaljs/exapp"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// CheckName is the name both checks are registered under.
const CheckName = "exapp"

// LivenessCheck fails once the App reached Failed.
func LivenessCheck(app *exapp.App) healthcheck.Check {
	return func() error {
		if state := app.State(); state == exapp.StateFailed {
			return fmt.Errorf("app %s is %s", app.Name(), state)
		}
		return nil
	}
}

// ReadinessCheck fails unless the App is Running.
func ReadinessCheck(app *exapp.App) healthcheck.Check {
	return func() error {
		if state := app.State(); state != exapp.StateRunning {
			return fmt.Errorf("app %s is %s", app.Name(), state)
		}
		return nil
	}
}

// NewHandler returns a healthcheck handler serving /live and /ready for app.
func NewHandler(app *exapp.App) healthcheck.Handler {
	h := healthcheck.NewHandler()
	register(h, app)
	return h
}

// NewMetricsHandler is like NewHandler but also exports check results to reg
// under namespace.
func NewMetricsHandler(app *exapp.App, reg prometheus.Registerer, namespace string) healthcheck.Handler {
	h := healthcheck.NewMetricsHandler(reg, namespace)
	register(h, app)
	return h
}

func register(h healthcheck.Handler, app *exapp.App) {
	h.AddLivenessCheck(CheckName, LivenessCheck(app))
	h.AddReadinessCheck(CheckName, ReadinessCheck(app))
}
