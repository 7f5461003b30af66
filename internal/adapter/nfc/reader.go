// Package nfc adapts a tag scanning device into a stream of tag events.
package nfc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"nfc-card-ledger/internal/core/domain"

	"github.com/rs/zerolog"
)

var (
	// ErrUnsupported is returned when no tag scanning capability is available.
	ErrUnsupported = errors.New("nfc: tag scanning not supported")
	// ErrAlreadyStarted is returned by Start on a running reader.
	ErrAlreadyStarted = errors.New("nfc: reader already started")
)

// Scanner is a platform tag scanning capability. Scan blocks until a tag is
// presented and returns its raw identifier, or io.EOF when the device is gone.
type Scanner interface {
	Scan(ctx context.Context) (string, error)
	Close() error
}

// LineScanner reads one identifier per line, as printed by keyboard-wedge
// and serial readers. Blank lines are skipped.
type LineScanner struct {
	lines  chan lineResult
	done   chan struct{}
	closer io.Closer
	once   sync.Once
}

type lineResult struct {
	text string
	err  error
}

// NewLineScanner starts reading r. If r is an io.Closer it is closed by Close,
// which also ends the read goroutine. Otherwise the goroutine stays blocked
// in r until its next line or EOF and then exits.
func NewLineScanner(r io.Reader) *LineScanner {
	s := &LineScanner{
		lines: make(chan lineResult),
		done:  make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	go s.readLines(r)
	return s
}

func (s *LineScanner) readLines(r io.Reader) {
	defer close(s.lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := domain.NormalizeTagID(sc.Text())
		if line == "" {
			continue
		}
		select {
		case s.lines <- lineResult{text: line}:
		case <-s.done:
			return
		}
	}
	if err := sc.Err(); err != nil {
		select {
		case s.lines <- lineResult{err: fmt.Errorf("reading tag line: %w", err)}:
		case <-s.done:
		}
	}
}

func (s *LineScanner) Scan(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return res.text, res.err
	}
}

func (s *LineScanner) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

// OpenDevice opens a line-oriented reader. An empty path means no reader is
// attached and yields ErrUnsupported; "-" reads standard input.
//
// Closing the scanner closes the device, standard input included: that is
// what unblocks a read waiting on a terminal or pipe. A scanner is single
// use either way.
func OpenDevice(path string) (Scanner, error) {
	switch path {
	case "":
		return nil, ErrUnsupported
	case "-":
		return NewLineScanner(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tag reader %s: %w", path, err)
	}
	return NewLineScanner(f), nil
}

// Event is one raw read. Exactly one of TagID and Err is set.
type Event struct {
	TagID string
	At    time.Time
	Err   error
}

const errorBackoff = 200 * time.Millisecond

// Reader pumps a Scanner into an event channel between Start and Stop.
type Reader struct {
	scanner Scanner
	log     zerolog.Logger
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReader(scanner Scanner, log zerolog.Logger) *Reader {
	return &Reader{scanner: scanner, log: log, now: time.Now}
}

// Start begins scanning. The returned channel is closed when the reader
// stops or the device reports io.EOF.
func (r *Reader) Start(ctx context.Context) (<-chan Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil, ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan Event)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, events, r.done)
	return events, nil
}

// Stop ends scanning, waits for the pump to exit and closes the scanner.
// Stop on a reader that was never started only closes the scanner.
func (r *Reader) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return r.scanner.Close()
}

func (r *Reader) run(ctx context.Context, events chan<- Event, done chan<- struct{}) {
	defer close(done)
	defer close(events)

	for {
		raw, err := r.scanner.Scan(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, io.EOF) {
			r.log.Info().Msg("tag reader closed")
			return
		}

		ev := Event{At: r.now()}
		if err != nil {
			r.log.Warn().Err(err).Msg("tag read failed")
			ev.Err = err
		} else {
			ev.TagID = domain.NormalizeTagID(raw)
			if ev.TagID == "" {
				continue
			}
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}

		if ev.Err != nil {
			select {
			case <-time.After(errorBackoff):
			case <-ctx.Done():
				return
			}
		}
	}
}
