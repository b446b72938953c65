package collect

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/lootquest/arengine/internal/collect"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
