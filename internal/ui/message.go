package ui

import "github.com/songsift/songsift/internal/tasks"

// progressUpdateMsg carries one engine progress event into the Update loop.
type progressUpdateMsg tasks.ProgressUpdate

// runCompleteMsg signals that the pipeline goroutine finished, successfully or not.
type runCompleteMsg struct {
	result *tasks.RunResult
	err    error
}
