package testutils

import (
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub"
)

// NewTestLogger creates a test logger that writes to testing.T
func NewTestLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// NewObservedLogger creates a logger whose entries can be inspected by the test.
func NewObservedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

// NewPublications creates n publications on channel with payloads "0".."n-1".
func NewPublications(channel string, n int) []pubsub.Publication {
	pubs := make([]pubsub.Publication, n)
	for i := range pubs {
		pubs[i] = pubsub.Publication{Channel: channel, Data: []byte(fmt.Sprint(i))}
	}
	return pubs
}
