package service

import (
	"context"

	"scansync/internal/model"
)

// Converter is the optional pre-upload transform hook. The orchestrator
// forwards its output set untouched and always runs the returned cleanup,
// even when the run later fails.
type Converter interface {
	Convert(ctx context.Context, records []*model.HierarchicalRecord) ([]*model.HierarchicalRecord, func(), error)
}

// NewConverter returns the passthrough transform. Image re-encoding and
// chapter consolidation plug in here.
func NewConverter() Converter {
	return &passthroughConverter{}
}

type passthroughConverter struct{}

func (passthroughConverter) Convert(_ context.Context, records []*model.HierarchicalRecord) ([]*model.HierarchicalRecord, func(), error) {
	return records, func() {}, nil
}
