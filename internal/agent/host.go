package agent

import "go.uber.org/zap"

// LogHost is the Host used when the agent runs standalone: it only logs
// what a device framework would receive.
type LogHost struct {
	logger *zap.Logger
}

func NewLogHost(logger *zap.Logger) *LogHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHost{logger: logger.Named("host")}
}

func (h *LogHost) UpdateStatus(s Status) {
	h.logger.Info("agent status changed", zap.String("status", string(s)))
}

func (h *LogHost) Register(name string) {
	h.logger.Info("registered weather source", zap.String("name", name))
}
