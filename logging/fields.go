package logging

import (
	"time"

	"go.uber.org/zap"
)

// BandFields describes a band submission.
//
// Example:
//
//	logger.Debug("band submitted", logging.BandFields(band.Slot, band.RowOffset, band.Height, q.Index())...)
func BandFields(slot, rowOffset, height, queue int) []zap.Field {
	return []zap.Field{
		zap.Int("slot", slot),
		zap.Int("row_offset", rowOffset),
		zap.Int("rows", height),
		zap.Int("queue", queue),
	}
}

// DeviceFields describes the device behind a queue.
func DeviceFields(queue int, name, kind string) []zap.Field {
	return []zap.Field{
		zap.Int("queue", queue),
		zap.String("device", name),
		zap.String("device_type", kind),
	}
}

// TimingFields records a start/end pair and the elapsed time between them.
func TimingFields(start, end time.Time) []zap.Field {
	return []zap.Field{
		zap.Time("start_time", start),
		zap.Time("end_time", end),
		zap.Duration("duration", end.Sub(start)),
	}
}
