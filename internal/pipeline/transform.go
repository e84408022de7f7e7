package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
)

// ReadingTransformer implements Transformer by decoding the JSON reading
// carried in each message.
type ReadingTransformer struct {
	logger *slog.Logger
}

// NewTransformer creates a ReadingTransformer.
func NewTransformer(logger *slog.Logger) *ReadingTransformer {
	return &ReadingTransformer{logger: logger}
}

func (t *ReadingTransformer) Transform(_ context.Context, raw domain.RawMessage) (domain.Reading, error) {
	reading, err := domain.ParseRawReading(raw)
	if err != nil {
		return domain.Reading{}, err
	}
	t.logger.Debug("parsed reading",
		"source", reading.Source,
		"date", reading.Date.Format(domain.DateLayout),
		"level", reading.Level,
	)
	return reading, nil
}
