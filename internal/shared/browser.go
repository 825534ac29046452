package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenBrowser launches the default browser on the given URL so the user
// can approve the authorization request. Callers fall back to printing
// the URL when this fails.
func OpenBrowser(url string) error {
	name, args, err := browserCommand(runtime.GOOS, url)
	if err != nil {
		return err
	}

	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}

// browserCommand maps the host OS to its URL-opening command.
func browserCommand(goos, url string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "linux":
		return "xdg-open", []string{url}, nil
	case "windows":
		return "cmd", []string{"/c", "start", url}, nil
	default:
		return "", nil, fmt.Errorf("no known browser command on %s", goos)
	}
}
