// Package autoload configures the global logger from the LOG_* environment
// on import.
package autoload

import (
	configx "github.com/pitchaya-w/coachflow/pkg/config"
	logx "github.com/pitchaya-w/coachflow/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
