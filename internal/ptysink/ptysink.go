// Package ptysink mirrors relayed values onto a pseudo-terminal so local tools
// (screen, minicom, a shell script reading the tty) can follow the aggregate
// without a Bluetooth client.
//
//	sink, err := ptysink.Open(ptysink.Options{Link: "/tmp/blerelay"})
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//	// sink.TTYName() -> "/dev/pts/X"
//	fmt.Fprintln(sink, "Device 1: 0a ")
//
// Writes never block. Bytes go to a ring buffer and a background loop drains
// it into the master side once it is writable. When the buffer is full the
// excess is dropped and counted, so a stalled reader never stalls the relay.
package ptysink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/blerelay/internal/groutine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

const (
	// DefaultBufferSize is the ring capacity used when Options.BufferSize is zero.
	DefaultBufferSize = 4096
	// DefaultPollTimeoutMs bounds how long the write loop waits before
	// rechecking for shutdown.
	DefaultPollTimeoutMs = 50
)

// Options configures a Sink. Zero values take defaults.
type Options struct {
	BufferSize    int
	PollTimeoutMs int
	// Link, when set, is a symlink created to the slave device and removed on Close.
	Link   string
	Logger *logrus.Logger
}

// Stats are runtime counters of a Sink.
type Stats struct {
	Queued  int   `json:"queued"`
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
}

// Sink is a write-only pseudo-terminal master. It implements io.WriteCloser.
type Sink struct {
	logger      *logrus.Logger
	master      *os.File
	tty         *os.File
	ttyName     string
	link        string
	pollTimeout int

	buf  *ringbuffer.RingBuffer
	wake chan struct{}

	cancel context.CancelFunc
	group  groutine.Group

	closed  atomic.Bool
	written atomic.Int64
	dropped atomic.Int64
}

var _ io.WriteCloser = (*Sink)(nil)

// Open allocates a pty pair, puts the slave in raw mode and starts the write loop.
func Open(opts Options) (*Sink, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.PollTimeoutMs <= 0 {
		opts.PollTimeoutMs = DefaultPollTimeoutMs
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	master, slave, err := openRaw()
	if err != nil {
		return nil, err
	}

	s := &Sink{
		logger:      logger,
		master:      master,
		tty:         slave,
		ttyName:     slave.Name(),
		pollTimeout: opts.PollTimeoutMs,
		buf:         ringbuffer.New(opts.BufferSize),
		wake:        make(chan struct{}, 1),
	}

	if opts.Link != "" {
		_ = os.Remove(opts.Link)
		if err := os.Symlink(s.ttyName, opts.Link); err != nil {
			_ = master.Close()
			_ = slave.Close()
			return nil, fmt.Errorf("link %s -> %s: %w", opts.Link, s.ttyName, err)
		}
		s.link = opts.Link
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.group.Go(ctx, "ptysink-write-loop", s.writeLoop)

	logger.WithField("tty", s.ttyName).Info("Mirror terminal ready")
	return s, nil
}

// TTYName returns the slave device path, e.g. /dev/pts/5.
func (s *Sink) TTYName() string {
	return s.ttyName
}

// Link returns the symlink created for the slave, or "".
func (s *Sink) Link() string {
	return s.link
}

// Write queues data for the terminal. It returns the number of bytes queued,
// which is less than len(data) when the ring is full.
func (s *Sink) Write(data []byte) (int, error) {
	if s.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, err := s.buf.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
		return n, err
	}
	if n < len(data) {
		s.dropped.Add(int64(len(data) - n))
		s.logger.WithFields(logrus.Fields{
			"queued":  n,
			"dropped": len(data) - n,
		}).Warn("Mirror buffer full")
	}
	if n > 0 {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return n, nil
}

// Stats returns a snapshot of the counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Queued:  s.buf.Length(),
		Written: s.written.Load(),
		Dropped: s.dropped.Load(),
	}
}

// Close stops the write loop, closes both ends and removes the link.
func (s *Sink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()

	// closing the master first unblocks a write stuck on a full tty
	var errs []error
	if err := s.master.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close master: %w", err))
	}
	s.group.Wait()
	if err := s.tty.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close tty: %w", err))
	}
	if s.link != "" {
		if err := os.Remove(s.link); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove link: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Sink) writeLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("mirror write loop panicked: %v", r)
		}
	}()

	fd := []unix.PollFd{{Fd: int32(s.master.Fd()), Events: unix.POLLOUT}}
	chunk := make([]byte, 1024)
	idle := time.Duration(s.pollTimeout) * time.Millisecond

	for {
		n, err := s.buf.TryRead(chunk)
		if n == 0 || errors.Is(err, ringbuffer.ErrIsEmpty) {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			case <-time.After(idle):
			}
			continue
		}

		for off := 0; off < n; {
			w, err := s.master.Write(chunk[off:n])
			if w > 0 {
				off += w
				s.written.Add(int64(w))
			}
			if err == nil {
				continue
			}
			switch {
			case errors.Is(err, syscall.EINTR):
			case errors.Is(err, syscall.EAGAIN):
				if ctx.Err() != nil {
					return
				}
				if _, perr := unix.Poll(fd, s.pollTimeout); perr != nil && !errors.Is(perr, syscall.EINTR) {
					s.logger.Debugf("mirror poll: %v", perr)
				}
			default:
				s.logger.WithError(err).Warn("Mirror write loop stopped")
				return
			}
		}
	}
}

func openRaw() (master, slave *os.File, err error) {
	master, slave, err = pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open pty: %w", err)
	}

	fail := func(step string, cause error) (*os.File, *os.File, error) {
		name := slave.Name()
		_ = master.Close()
		_ = slave.Close()
		return nil, nil, fmt.Errorf("%s %s: %w", step, name, cause)
	}

	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		return fail("raw mode", err)
	}
	if err := syscall.SetNonblock(int(master.Fd()), true); err != nil {
		return fail("nonblocking master", err)
	}
	return master, slave, nil
}
