package perfspan

import "go.uber.org/zap"

var logger = zap.NewNop()

// SetLogger sets the logger used for debug and degradation messages. By
// default nothing is logged.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}
