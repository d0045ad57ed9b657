//go:build linux

package child

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func redirectStdio(logFD int) error {
	if err := unix.Dup3(logFD, unix.Stdout, 0); err != nil {
		return fmt.Errorf("dup stdout: %w", err)
	}
	if err := unix.Dup3(logFD, unix.Stderr, 0); err != nil {
		return fmt.Errorf("dup stderr: %w", err)
	}
	if err := unix.Close(logFD); err != nil {
		return fmt.Errorf("close log descriptor: %w", err)
	}
	return nil
}
