//go:build !linux

package child

import "fmt"

func redirectStdio(logFD int) error {
	return fmt.Errorf("isolated children are only supported on linux")
}

func harden(h Hardening) error {
	return fmt.Errorf("child hardening is only supported on linux")
}
