package playback

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type media struct {
	duration float64
}

func (m media) Duration() float64 { return m.duration }
func (m media) Close() error      { return nil }

// StaticLoader accepts any URL without fetching it; the adapter falls back to
// the call's known duration. Used by the mock backend.
type StaticLoader struct{}

func (StaticLoader) Load(ctx context.Context, url string) (Media, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return media{}, nil
}

// HTTPLoader fetches the start of a recording to check it is reachable and,
// for WAV, read its duration from the RIFF headers.
type HTTPLoader struct {
	client       *http.Client
	maxRetryTime time.Duration
}

func NewHTTPLoader(timeout time.Duration) *HTTPLoader {
	return &HTTPLoader{
		client:       &http.Client{Timeout: timeout},
		maxRetryTime: 12 * time.Second,
	}
}

func (l *HTTPLoader) Load(ctx context.Context, url string) (Media, error) {
	var out media
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = l.maxRetryTime
	op := func() error {
		m, err := l.fetch(ctx, url)
		if err != nil {
			return err
		}
		out = m
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, &LoadError{URL: url, Err: err}
	}
	return out, nil
}

func (l *HTTPLoader) fetch(ctx context.Context, url string) (media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return media{}, backoff.Permanent(err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return media{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return media{}, fmt.Errorf("audio server error: %d", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return media{}, backoff.Permanent(fmt.Errorf("audio fetch failed: %d", resp.StatusCode))
	}

	dur, err := wavDuration(bufio.NewReader(resp.Body))
	if errors.Is(err, errNotWAV) {
		return media{}, nil
	}
	if err != nil {
		return media{}, backoff.Permanent(fmt.Errorf("decode wav header: %w", err))
	}
	return media{duration: dur}, nil
}

var errNotWAV = errors.New("not a RIFF/WAVE stream")

// maxFmtChunk covers WAVE_FORMAT_EXTENSIBLE (40 bytes) with room to spare.
const maxFmtChunk = 64

// wavDuration walks RIFF chunks up to "data" and returns its length in seconds.
func wavDuration(r io.Reader) (float64, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return 0, errNotWAV
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, errNotWAV
	}

	var byteRate uint32
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return 0, fmt.Errorf("chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			if size < 16 || size > maxFmtChunk {
				return 0, fmt.Errorf("fmt chunk size %d out of range", size)
			}
			var fmtChunk [16]byte
			if _, err := io.ReadFull(r, fmtChunk[:]); err != nil {
				return 0, fmt.Errorf("fmt chunk: %w", err)
			}
			if _, err := io.CopyN(io.Discard, r, int64(size)-16); err != nil {
				return 0, fmt.Errorf("fmt chunk: %w", err)
			}
			byteRate = binary.LittleEndian.Uint32(fmtChunk[8:12])
		case "data":
			if byteRate == 0 {
				return 0, errors.New("data chunk before fmt chunk")
			}
			return float64(size) / float64(byteRate), nil
		default:
			// chunks are word aligned
			skip := int64(size) + int64(size&1)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return 0, fmt.Errorf("skip %q chunk: %w", id, err)
			}
			continue
		}
		if size&1 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return 0, err
			}
		}
	}
}
