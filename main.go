package main

import (
	"context"
	"os"

	"github.com/achetronic/forwarder/commands"
	"github.com/achetronic/forwarder/logger"
	"github.com/achetronic/forwarder/shutdown"
)

const (
	errCommandError = 1
	errSetup        = 2
)

func main() {
	log := logger.New("forwarder")

	ctx, cancel := shutdown.WithSignals(context.Background())

	root, err := commands.NewRootCommand(log)
	if err != nil {
		cancel()
		errorExit(log, err, errSetup)
	}

	err = root.ExecuteContext(ctx)
	cancel()
	if err != nil {
		errorExit(log, err, errCommandError)
	}
	log.Flush()
}

func errorExit(log *logger.Logger, err error, code int) {
	log.Error(err, "Forwarder failed")
	log.Flush()
	os.Exit(code)
}
