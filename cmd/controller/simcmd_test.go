package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/config"
)

func TestSimReachesDefaultWaypoints(t *testing.T) {
	var out bytes.Buffer
	err := runSim(zaptest.NewLogger(t).Sugar(), config.Default(), &SimCmd{Duration: time.Minute, PrintEvery: 50}, &out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Contains(t, lines[len(lines)-1], "done at")
}

func TestSimSurvivesSensorFaults(t *testing.T) {
	var out bytes.Buffer
	cmd := &SimCmd{Duration: time.Minute, Fault: 7}
	require.NoError(t, runSim(zaptest.NewLogger(t).Sugar(), config.Default(), cmd, &out))
	assert.Contains(t, out.String(), "done at")
}

func TestSimTimesOut(t *testing.T) {
	var out bytes.Buffer
	err := runSim(zaptest.NewLogger(t).Sugar(), config.Default(), &SimCmd{Duration: 100 * time.Millisecond}, &out)
	assert.Error(t, err)
}
