package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess       = 0 // All rollouts succeeded
	ExitRolloutFailed = 1 // One or more rollouts failed
	ExitError         = 2 // Configuration or runtime error
)

// RolloutFailureError indicates that the run itself completed, but one or
// more rollouts failed.
type RolloutFailureError struct {
	Message string
}

func (e *RolloutFailureError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var rolloutErr *RolloutFailureError
		if errors.As(err, &rolloutErr) {
			os.Exit(ExitRolloutFailed)
		}

		// All other errors are configuration/runtime errors
		os.Exit(ExitError)
	}
}
