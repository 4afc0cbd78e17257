//go:build !unix

package exec

import "os/exec"

// configureProcess keeps the default cancellation, which kills the process itself.
func configureProcess(cmd *exec.Cmd) {}
