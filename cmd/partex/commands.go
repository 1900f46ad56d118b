package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mitchellh/cli"

	"github.com/nodecluster/partex/cmd/partex/command"
)

// makeShutdownCh returns a channel that is closed on SIGINT/SIGTERM, the
// way cmd/serf's main wires its own shutdown channel.
func makeShutdownCh() <-chan struct{} {
	resultCh := make(chan struct{})
	signalCh := make(chan os.Signal, 4)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		close(resultCh)
	}()
	return resultCh
}

// Commands is the factory map handed to cli.CLI, grounded on cmd/serf's
// own Commands map (command/agent/command.go et al.), rebuilt against the
// partex admin surface.
func Commands(ui cli.Ui, shutdownCh <-chan struct{}) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"agent": func() (cli.Command, error) {
			return &command.AgentCommand{Ui: ui, ShutdownCh: shutdownCh}, nil
		},
		"members": func() (cli.Command, error) {
			return &command.MembersCommand{Ui: ui}, nil
		},
		"exchange-status": func() (cli.Command, error) {
			return &command.StatusCommand{Ui: ui}, nil
		},
		"force-dump": func() (cli.Command, error) {
			return &command.ForceDumpCommand{Ui: ui}, nil
		},
		"force-lost-reset": func() (cli.Command, error) {
			return &command.ForceLostResetCommand{Ui: ui}, nil
		},
		"monitor": func() (cli.Command, error) {
			return &command.MonitorCommand{Ui: ui, ShutdownCh: shutdownCh}, nil
		},
		"keygen": func() (cli.Command, error) {
			return &command.KeygenCommand{Ui: ui}, nil
		},
	}
}
