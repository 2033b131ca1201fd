// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounterHelpers(t *testing.T) {
	before := CounterValue(SessionOutcomesTotal, "COMPLETED", "R_NONE")
	RecordSessionOutcome("COMPLETED", "R_NONE", 61)
	assert.Equal(t, before+1, CounterValue(SessionOutcomesTotal, "COMPLETED", "R_NONE"))

	before = CounterValue(ProcTerminateTotal, "SIGTERM", "sent")
	IncProcTerminate("SIGTERM", "sent")
	assert.Equal(t, before+1, CounterValue(ProcTerminateTotal, "SIGTERM", "sent"))
}

func TestSetActiveJobs(t *testing.T) {
	SetActiveJobs(3, 1)
	assert.Equal(t, 3.0, GaugeValue(ActiveJobs, "armed"))
	assert.Equal(t, 1.0, GaugeValue(ActiveJobs, "running"))
	SetActiveJobs(0, 0)
	assert.Equal(t, 0.0, GaugeValue(ActiveJobs, "armed"))
}
