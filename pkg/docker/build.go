package docker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/moby/term"
)

// BuildHandle is the per-build view of the daemon's build output stream.
// It is returned by Service.BuildImage and belongs to the caller that
// started the build. Nothing else reads from it.
type BuildHandle struct {
	Tag       string
	StartedAt time.Time

	body    io.ReadCloser
	reader  io.Reader
	pipes   []*io.PipeWriter
	pumps   sync.WaitGroup
	watched bool
}

// NewBuildHandle wraps a raw build output stream (a sequence of JSON messages)
func NewBuildHandle(tag string, body io.ReadCloser) *BuildHandle {
	return &BuildHandle{
		Tag:       tag,
		StartedAt: time.Now(),
		body:      body,
		reader:    body,
	}
}

// Pump copies the raw build output to out, rendered the way the docker CLI
// renders it. It must be called before Watch. Rendering failures are passed
// to onErr and never affect the build itself.
func (h *BuildHandle) Pump(out io.Writer, onErr func(error)) {
	if h.watched {
		return
	}

	pr, pw := io.Pipe()
	h.reader = io.TeeReader(h.reader, pw)
	h.pipes = append(h.pipes, pw)

	fd, isTerminal := term.GetFdInfo(out)

	h.pumps.Add(1)
	go func() {
		defer h.pumps.Done()
		err := jsonmessage.DisplayJSONMessagesStream(pr, out, fd, isTerminal, nil)
		if err != nil {
			// The build stream keeps flowing even if the renderer gave up.
			_, _ = io.Copy(io.Discard, pr)
			var jerr *jsonmessage.JSONError
			if errors.As(err, &jerr) {
				// Build failures are reported by Watch.
				return
			}
			if onErr != nil {
				onErr(err)
			}
		}
	}()
}

// Watch reads the build output until it ends. onProgress is invoked for every
// progress message (layer download or extraction). A build failure reported
// inside the stream is returned as an error; a clean end of stream returns nil.
func (h *BuildHandle) Watch(onProgress func()) error {
	h.watched = true
	defer h.closePipes()

	dec := json.NewDecoder(h.reader)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode build output: %w", err)
		}

		if msg.Error != nil {
			// Drain so the pumps see the rest of the stream.
			_, _ = io.Copy(io.Discard, h.reader)
			return msg.Error
		}
		if msg.ErrorMessage != "" {
			_, _ = io.Copy(io.Discard, h.reader)
			return errors.New(msg.ErrorMessage)
		}

		if isProgress(msg) && onProgress != nil {
			onProgress()
		}
	}
}

// Close releases the build stream and waits for any pumps to finish
func (h *BuildHandle) Close() error {
	h.closePipes()
	err := h.body.Close()
	h.pumps.Wait()
	return err
}

func (h *BuildHandle) closePipes() {
	for _, pw := range h.pipes {
		_ = pw.Close()
	}
	h.pipes = nil
}

func isProgress(msg jsonmessage.JSONMessage) bool {
	return msg.Progress != nil && (msg.Progress.Current > 0 || msg.Progress.Total > 0)
}
