package status

import (
	"math"

	"go.uber.org/zap"
)

// LogSink writes every merged update to a logger at debug level, one line
// per update. Pointing it at a dedicated file logger gives a data log.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) StatusUpdated(u Update, _ Snapshot) {
	zf := make([]zap.Field, 0, len(u.Fields)+1)
	zf = append(zf, zap.String("source", u.Source))
	for _, f := range u.Fields {
		zf = append(zf, zapField(f))
	}
	s.Log.Debug("status", zf...)
}

func zapField(f Field) zap.Field {
	switch v := f.Value.(type) {
	case bool:
		return zap.Bool(f.Key, v)
	case float64:
		if math.IsNaN(v) {
			return zap.String(f.Key, "NaN")
		}
		return zap.Float64(f.Key, v)
	case int:
		return zap.Int(f.Key, v)
	case string:
		return zap.String(f.Key, v)
	}
	return zap.Any(f.Key, f.Value)
}
