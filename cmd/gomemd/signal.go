package main

import (
	"os/signal"
	"syscall"
)

// signalIgnore discards a signal process-wide for the life of the process.
func signalIgnore(sig syscall.Signal) {
	signal.Ignore(sig)
}
