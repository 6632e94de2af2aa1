package input

import (
	"context"
	"io"
	"sync"

	"github.com/nxadm/tail"
	"github.com/rs/zerolog/log"

	"github.com/vigilsec/vigil/internal/domain"
	"github.com/vigilsec/vigil/internal/ports"
)

// FileTailer follows an NDJSON request feed exported by the serving tier
// and turns each line into a RequestContext. The feed file may rotate or
// not exist yet; tailing survives both.
type FileTailer struct {
	filepath string
	parser   ports.RequestParser
	buffer   int
	whence   int

	mu       sync.Mutex
	tail     *tail.Tail
	running  bool
	stopChan chan struct{}
}

// TailerOption adjusts FileTailer construction.
type TailerOption func(*FileTailer)

// FromBeginning replays the whole feed file instead of only new lines.
func FromBeginning() TailerOption {
	return func(t *FileTailer) { t.whence = io.SeekStart }
}

// WithBuffer sets the request channel capacity.
func WithBuffer(n int) TailerOption {
	return func(t *FileTailer) {
		if n > 0 {
			t.buffer = n
		}
	}
}

func NewFileTailer(filepath string, parser ports.RequestParser, opts ...TailerOption) *FileTailer {
	t := &FileTailer{
		filepath: filepath,
		parser:   parser,
		buffer:   1000,
		whence:   io.SeekEnd,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *FileTailer) Start(ctx context.Context) (<-chan *domain.RequestContext, <-chan error) {
	requests := make(chan *domain.RequestContext, t.buffer)
	errs := make(chan error, 10)

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		close(requests)
		return requests, errs
	}
	t.running = true
	t.stopChan = make(chan struct{})
	t.mu.Unlock()

	go t.follow(ctx, requests, errs)
	return requests, errs
}

func (t *FileTailer) follow(ctx context.Context, requests chan<- *domain.RequestContext, errs chan<- error) {
	defer close(requests)
	defer close(errs)

	tf, err := tail.TailFile(t.filepath, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Whence: t.whence},
	})
	if err != nil {
		log.Error().Err(err).Str("file", t.filepath).Msg("Failed to tail request feed")
		errs <- err
		return
	}

	t.mu.Lock()
	t.tail = tf
	t.mu.Unlock()

	log.Info().Str("file", t.filepath).Msg("Following request feed")

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopChan:
			return
		case line, ok := <-tf.Lines:
			if !ok {
				log.Info().Str("file", t.filepath).Msg("Request feed closed")
				return
			}
			if line.Err != nil {
				log.Warn().Err(line.Err).Msg("Feed read error")
				errs <- line.Err
				continue
			}

			req := t.decode(line.Text)
			if req == nil {
				continue
			}

			select {
			case requests <- req:
			case <-ctx.Done():
				return
			case <-t.stopChan:
				return
			}
		}
	}
}

// decode parses one feed line, capping oversized lines before they reach
// the parser. Unparseable lines are dropped, not fatal.
func (t *FileTailer) decode(line string) *domain.RequestContext {
	if line == "" {
		return nil
	}

	capped := false
	if len(line) > domain.MaxLineLength {
		log.Warn().
			Int("original_size", len(line)).
			Int("capped_to", domain.MaxLineLength).
			Msg("Oversized feed line capped")
		line = line[:domain.MaxLineLength]
		capped = true
	}

	req, err := t.parser.Parse(line)
	if err != nil {
		log.Debug().Err(err).Msg("Dropping unparseable feed line")
		return nil
	}
	if capped {
		req.Truncated = true
	}
	return req
}

func (t *FileTailer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	close(t.stopChan)
	t.running = false

	if t.tail != nil {
		return t.tail.Stop()
	}
	return nil
}

func (t *FileTailer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
