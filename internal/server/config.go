package server

import (
	"github.com/raysh454/secscan/internal/app"
	"github.com/raysh454/secscan/internal/logging"
	"github.com/raysh454/secscan/internal/runner"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	AppConfig *app.Config

	Logger logging.Logger

	// Executor runs scanner processes; nil means real processes.
	Executor runner.Executor
}
