// Package main implements the entry point for the nudge API server, which
// schedules spaced-repetition flashcard deliveries and serves the delivery
// worker and the learners' feedback actions.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
