package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub"
)

const maxLineSize = 16 << 20

var errMissingChannel = errors.New("missing channel")

// inputLine is one newline-delimited publication read from stdin.
// Data is any JSON value and is forwarded verbatim.
type inputLine struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

func parsePublication(line []byte) (pubsub.Publication, error) {
	var in inputLine
	if err := json.Unmarshal(line, &in); err != nil {
		return pubsub.Publication{}, fmt.Errorf("failed to decode publication: %w", err)
	}
	if in.Channel == "" {
		return pubsub.Publication{}, errMissingChannel
	}
	return pubsub.Publication{Channel: in.Channel, Data: []byte(in.Data)}, nil
}

// readPublications sends every publication read from r until EOF. Malformed lines
// are logged and skipped. It stops early with the error returned by send.
func readPublications(r io.Reader, send func(pubsub.Publication) error, log *zap.SugaredLogger) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	sent := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		pub, err := parsePublication(line)
		if err != nil {
			log.Warnw("skipping malformed publication", "line", lineNo, "error", err)
			continue
		}
		if err := send(pub); err != nil {
			return sent, err
		}
		sent++
	}
	if err := scanner.Err(); err != nil {
		return sent, fmt.Errorf("failed to read publications: %w", err)
	}
	return sent, nil
}
