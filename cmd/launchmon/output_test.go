package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrintRowsPlainOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printRows(&buf, []outputRow{
		{Key: "descriptor", Value: "/tmp/com.example.web.plist"},
		{Key: "state", Value: "RUNNING"},
	})

	got := buf.String()
	assert.Contains(t, got, "descriptor: /tmp/com.example.web.plist")
	assert.Contains(t, got, "state: RUNNING")
}

func TestPrintTablePlainOutputOmitsHeader(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printTable(&buf, []string{"LABEL", "STATE"}, [][]string{
		{"com.example.a", "RUNNING"},
		{"com.example.b", "STOPPED"},
	}, 1)

	assert.Equal(t, "com.example.a\tRUNNING\ncom.example.b\tSTOPPED\n", buf.String())
}

func TestFormatWhenPlain(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.Equal(t, "-", formatWhen(&buf, time.Time{}))
	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.FixedZone("X", 3600))
	assert.Equal(t, "2026-03-01T11:30:00Z", formatWhen(&buf, ts))
}

func TestColorizeValueStates(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"RUNNING":    ansiGreen,
		"NOT_LOADED": ansiRed,
		"STOPPED":    ansiYellow,
	}
	for value, color := range cases {
		assert.Equal(t, color+value+ansiReset, colorizeValue(value), value)
	}
}

func TestColorizeValueLeavesUnknownValuesUntouched(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "custom-value", colorizeValue("custom-value"))
}
