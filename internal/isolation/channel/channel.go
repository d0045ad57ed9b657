// Package channel wraps one pipe pair used to carry bytes from an isolated
// child to its supervisor.
package channel

import (
	"errors"
	"fmt"

	pkgerrors "isolator/pkg/errors"
)

// Pipes is the part of world.IO a channel needs.
type Pipes interface {
	Pipe() (r, w int, err error)
	Close(fd int) error
}

// ErrRoleTaken is returned when ChildEnd or ParentEnd is called after a
// role was already chosen.
var ErrRoleTaken = pkgerrors.New(pkgerrors.ChannelRoleTaken)

type role int

const (
	roleNone role = iota
	roleChild
	roleParent
)

// Channel owns a reader and a writer descriptor until one role is chosen.
// Every descriptor is closed exactly once, by the role switch or by Close.
type Channel struct {
	pipes      Pipes
	reader     int
	writer     int
	readerOpen bool
	writerOpen bool
	role       role
}

// Open allocates a pipe pair.
func Open(p Pipes) (*Channel, error) {
	r, w, err := p.Pipe()
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.PipeCreateFailed)
	}
	return &Channel{pipes: p, reader: r, writer: w, readerOpen: true, writerOpen: true}, nil
}

// Writer lends the writer descriptor without changing ownership. The spawn
// path uses it to let the child inherit the writer before ParentEnd.
func (c *Channel) Writer() int {
	return c.writer
}

// ChildEnd closes the reader and returns the writer, for the process that
// produces bytes.
func (c *Channel) ChildEnd() (int, error) {
	if c.role != roleNone {
		return -1, ErrRoleTaken
	}
	c.role = roleChild
	return c.writer, c.closeReader()
}

// ParentEnd closes the writer and returns the reader, for the supervisor.
// The reader is returned even when closing the writer fails.
func (c *Channel) ParentEnd() (int, error) {
	if c.role != roleNone {
		return -1, ErrRoleTaken
	}
	c.role = roleParent
	return c.reader, c.closeWriter()
}

// Close releases whatever descriptors are still owned. It is safe to call
// more than once.
func (c *Channel) Close() error {
	return errors.Join(c.closeReader(), c.closeWriter())
}

func (c *Channel) closeReader() error {
	if !c.readerOpen {
		return nil
	}
	c.readerOpen = false
	if err := c.pipes.Close(c.reader); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.PipeCloseFailed, "close reader %d", c.reader)
	}
	return nil
}

func (c *Channel) closeWriter() error {
	if !c.writerOpen {
		return nil
	}
	c.writerOpen = false
	if err := c.pipes.Close(c.writer); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.PipeCloseFailed, "close writer %d", c.writer)
	}
	return nil
}

func (c *Channel) String() string {
	return fmt.Sprintf("channel(r=%d, w=%d)", c.reader, c.writer)
}

// Scope opens a channel, runs fn with it and closes it on every exit path,
// including a panic in fn. A close error is joined onto fn's error.
func Scope[T any](p Pipes, fn func(*Channel) (T, error)) (result T, err error) {
	c, err := Open(p)
	if err != nil {
		return result, err
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()
	return fn(c)
}
