package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormattingWithAndWithoutCause(t *testing.T) {
	bare := New(CodeConfig, SeverityFatal, "config", "Load", "missing update_url")
	assert.Equal(t, "CONFIG_ERROR[config.Load]: missing update_url", bare.Error())

	wrapped := Wrap(CodeStore, SeverityPass, "store", "Records", errors.New("connection reset"))
	assert.Equal(t, "STORE_ERROR[store.Records]: connection reset: connection reset", wrapped.Error())
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(CodeTransport, SeverityFatal, "transport", "Send", cause)
	assert.Same(t, cause, errors.Unwrap(wrapped))
}

func TestIsFatalTrueForFatalSeverity(t *testing.T) {
	err := New(CodeSource, SeverityFatal, "pipeline", "UpdateIndividualRecords", "all sources failed")
	assert.True(t, IsFatal(err))
}

func TestIsFatalFalseForOtherSeverities(t *testing.T) {
	for _, sev := range []Severity{SeverityPass, SeveritySource, SeverityWarning} {
		err := New(CodeStore, sev, "store", "op", "msg")
		assert.False(t, IsFatal(err), "severity %s should not be fatal", sev)
	}
}

func TestIsFatalFalseForPlainError(t *testing.T) {
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestIsFatalUnwrapsThroughFmtErrorf(t *testing.T) {
	inner := New(CodeConfig, SeverityFatal, "config", "Load", "bad yaml")
	outer := fmt.Errorf("app: startup: %w", inner)
	assert.True(t, IsFatal(outer))
}
