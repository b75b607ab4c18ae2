package stats

import (
	"io"
	"log/slog"

	"github.com/Evoker-Industries/Janus/pkg/config"
)

func statsCfg(retentionDays int, schedule string) config.StatsConfig {
	return config.StatsConfig{
		Enabled:       true,
		RetentionDays: retentionDays,
		PruneSchedule: schedule,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
