package booking

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/prmjagdish/schedula/internal/apperrors"
)

const instrumentationName = "github.com/prmjagdish/schedula/internal/booking"

var tracer = otel.Tracer(instrumentationName)

type instruments struct {
	bookOutcomes   metric.Int64Counter
	cancelOutcomes metric.Int64Counter
	txAttempts     metric.Int64Histogram
}

// newInstruments registers against the global meter provider, which is a
// no-op unless the process installs one.
func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	book, err := meter.Int64Counter("booking.book.outcomes",
		metric.WithDescription("Book calls by outcome code"))
	if err != nil {
		book, _ = fallback.Int64Counter("booking.book.outcomes")
	}

	cancel, err := meter.Int64Counter("booking.cancel.outcomes",
		metric.WithDescription("Cancel calls by outcome code"))
	if err != nil {
		cancel, _ = fallback.Int64Counter("booking.cancel.outcomes")
	}

	attempts, err := meter.Int64Histogram("booking.tx.attempts",
		metric.WithDescription("Transaction attempts per booking operation"))
	if err != nil {
		attempts, _ = fallback.Int64Histogram("booking.tx.attempts")
	}

	return &instruments{bookOutcomes: book, cancelOutcomes: cancel, txAttempts: attempts}
}

func (m *instruments) record(ctx context.Context, counter metric.Int64Counter, op string, attempts int, err error) {
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcomeCode(err))))
	if attempts > 0 {
		m.txAttempts.Record(ctx, int64(attempts), metric.WithAttributes(attribute.String("op", op)))
	}
}

func outcomeCode(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "error"
}
