package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"isolator/internal/isolation/child"
)

// registerTasks installs the demo computations. It runs in both the parent
// and the re-executed child, so the names agree.
func registerTasks() {
	child.Register("answer", func() (any, error) {
		return 42, nil
	})
	child.Register("hello", func() (any, error) {
		fmt.Println("hello from the isolated child")
		fmt.Fprintln(os.Stderr, "stderr goes to the log too")
		return "hello", nil
	})
	child.Register("info", func() (any, error) {
		host, _ := os.Hostname()
		return map[string]any{
			"pid":      os.Getpid(),
			"ppid":     os.Getppid(),
			"hostname": host,
			"go":       runtime.Version(),
		}, nil
	})
	child.Register("sleep", func() (any, error) {
		time.Sleep(2 * time.Second)
		return "slept", nil
	})
	child.Register("spin", func() (any, error) {
		for i := 0; ; i++ {
			_ = i
		}
	})
	child.Register("fail", func() (any, error) {
		return nil, errors.New("computation gave up")
	})
	child.Register("panic", func() (any, error) {
		var m map[string]int
		m["boom"]++
		return m, nil
	})
	child.Register("exit", func() (any, error) {
		os.Exit(7)
		return nil, nil
	})
	child.Register("unencodable", func() (any, error) {
		return make(chan int), nil
	})
	child.Register("alloc", func() (any, error) {
		var chunks [][]byte
		for i := 0; i < 64; i++ {
			chunks = append(chunks, make([]byte, 16<<20))
			chunks[i][0] = 1
		}
		return len(chunks), nil
	})
}
