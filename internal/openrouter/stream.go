package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"aiknife/internal/models"
)

const (
	eventPrefix  = "data: "
	doneSentinel = "[DONE]"
	readSize     = 4096
)

// ErrStreamConsumed is reported when Deltas is ranged over a second time.
var ErrStreamConsumed = errors.New("stream already consumed")

// Decoder turns server-sent event bytes into text deltas. Input may be split
// at arbitrary byte offsets; only complete lines are interpreted.
type Decoder struct {
	buf          []byte
	done         bool
	malformed    int
	maxMalformed int
}

// NewDecoder returns a decoder that fails after maxMalformed consecutive
// undecodable payloads. Zero disables the cap.
func NewDecoder(maxMalformed int) *Decoder {
	return &Decoder{maxMalformed: maxMalformed}
}

// Done reports whether the terminating sentinel has been seen.
func (d *Decoder) Done() bool {
	return d.done
}

// Feed appends p to the buffer and returns the deltas of every complete
// event line now available. Once the sentinel is seen, the rest of the
// buffer and all later input are ignored.
func (d *Decoder) Feed(p []byte) ([]string, error) {
	if d.done {
		return nil, nil
	}
	d.buf = append(d.buf, p...)

	var deltas []string
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(d.buf[:idx])
		d.buf = d.buf[idx+1:]

		if len(line) == 0 || !bytes.HasPrefix(line, []byte(eventPrefix)) {
			continue
		}
		data := line[len(eventPrefix):]
		if string(data) == doneSentinel {
			d.done = true
			d.buf = nil
			return deltas, nil
		}

		var event streamEvent
		if err := json.Unmarshal(data, &event); err != nil {
			d.malformed++
			if d.maxMalformed > 0 && d.malformed > d.maxMalformed {
				return deltas, fmt.Errorf("%w: %d consecutive undecodable events", models.ErrMalformedStream, d.malformed)
			}
			continue
		}
		d.malformed = 0

		if len(event.Choices) > 0 && event.Choices[0].Delta.Content != "" {
			deltas = append(deltas, event.Choices[0].Delta.Content)
		}
	}

	return deltas, nil
}

type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream is a streamed chat response. It is finite and can be consumed once.
type Stream struct {
	ctx     context.Context
	body    io.ReadCloser
	cancel  context.CancelFunc
	decoder *Decoder

	closeOnce sync.Once
	used      bool
}

func newStream(ctx context.Context, body io.ReadCloser, cancel context.CancelFunc, maxMalformed int) *Stream {
	return &Stream{
		ctx:     ctx,
		body:    body,
		cancel:  cancel,
		decoder: NewDecoder(maxMalformed),
	}
}

// Deltas yields text fragments in arrival order. A non-nil error is yielded
// at most once, as the final element. The response body is released when
// the loop ends for any reason, including an early break.
func (s *Stream) Deltas() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if s.used {
			yield("", ErrStreamConsumed)
			return
		}
		s.used = true
		defer s.Close()

		buf := make([]byte, readSize)
		for {
			n, readErr := s.body.Read(buf)
			if n > 0 {
				deltas, err := s.decoder.Feed(buf[:n])
				for _, delta := range deltas {
					if !yield(delta, nil) {
						return
					}
				}
				if err != nil {
					yield("", err)
					return
				}
				if s.decoder.Done() {
					return
				}
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					return
				}
				if ctxErr := s.ctx.Err(); ctxErr != nil {
					readErr = ctxErr
				}
				yield("", fmt.Errorf("read stream: %w", readErr))
				return
			}
		}
	}
}

// Close releases the underlying response. It is safe to call repeatedly.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
		s.cancel()
	})
	return err
}
