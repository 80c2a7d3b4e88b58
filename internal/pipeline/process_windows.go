//go:build windows

package pipeline

import "os"

func suspend(*os.Process) error { return ErrSuspendUnsupported }

func resume(*os.Process) error { return ErrSuspendUnsupported }
