// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI walks a single pipeline run end to end:
//  1. [URLInputView] : Enter the creator page whose titles should be sifted
//  2. [ConfirmView] : Review the page and target playlist before starting
//  3. [RunView] : Monitor real-time progress updates
//  4. [ResultView] : Display run counts and browse unresolved tracks
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the pipeline engine, providing non-blocking status reporting during runs.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
