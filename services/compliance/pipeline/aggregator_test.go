// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"testing"
	"time"

	"github.com/AleutianAI/CompliancePulse/services/compliance/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

func newTestAggregator(t *testing.T, interval time.Duration, sinks ...ReportSink) (*Aggregator, *Queue[metrics.Snapshot], *Queue[Command], *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	in := NewQueue[metrics.Snapshot]()
	out := NewQueue[Command]()
	agg := NewAggregator(AggregatorConfig{
		Interval: interval,
		RunID:    "run-test",
		Clock:    clock.Now,
	}, in, out, sinks...)
	return agg, in, out, clock
}

func snapshotOf(events, euViolations uint64) metrics.Snapshot {
	return metrics.Snapshot{
		TotalEvents:     events,
		EUActViolations: euViolations,
		LowRisk:         events,
	}
}

func TestAggregator_NoReportBeforeInterval(t *testing.T) {
	agg, in, out, clock := newTestAggregator(t, 5*time.Second)

	require.NoError(t, in.Send(snapshotOf(100, 1)))
	assert.Equal(t, 1, agg.Drain())

	_, ok := agg.Tick(clock.Advance(4 * time.Second))
	assert.False(t, ok)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, uint64(100), agg.Total().TotalEvents)
}

func TestAggregator_ReportThroughputAndTotals(t *testing.T) {
	agg, in, out, clock := newTestAggregator(t, 5*time.Second)

	require.NoError(t, in.Send(snapshotOf(300, 2)))
	require.NoError(t, in.Send(snapshotOf(200, 1)))
	assert.Equal(t, 2, agg.Drain())

	report, ok := agg.Tick(clock.Advance(5 * time.Second))
	require.True(t, ok)

	assert.Equal(t, "run-test", report.RunID)
	assert.Equal(t, uint64(1), report.Interval)
	assert.Equal(t, 5*time.Second, report.Elapsed)
	assert.Equal(t, uint64(500), report.Totals.TotalEvents)
	assert.Equal(t, uint64(3), report.Totals.EUActViolations)
	assert.InDelta(t, 100.0, report.Throughput, 1e-9)
	assert.Equal(t, []float64{100}, report.RateHistory)
	assert.Equal(t, []metrics.ViolationPoint{{EUAct: 3}}, report.ViolationHistory)

	cmd, ok := out.TryRecv()
	require.True(t, ok)
	update, ok := cmd.(UpdateMetrics)
	require.True(t, ok)
	assert.Equal(t, report, update.Report)

	// Second interval: throughput covers only new events, totals accumulate.
	require.NoError(t, in.Send(snapshotOf(1000, 0)))
	agg.Drain()
	report, ok = agg.Tick(clock.Advance(10 * time.Second))
	require.True(t, ok)
	assert.InDelta(t, 100.0, report.Throughput, 1e-9)
	assert.Equal(t, uint64(1500), report.Totals.TotalEvents)
	assert.Equal(t, uint64(2), report.Interval)
	assert.Len(t, report.RateHistory, 2)
}

func TestAggregator_EmptyIntervalReportsZeroThroughput(t *testing.T) {
	agg, _, _, clock := newTestAggregator(t, time.Second)

	report, ok := agg.Tick(clock.Advance(time.Second))
	require.True(t, ok)
	assert.Zero(t, report.Throughput)
	assert.Equal(t, []float64{0}, report.RateHistory)
}

func TestAggregator_HistoryBoundedToThirty(t *testing.T) {
	agg, in, _, clock := newTestAggregator(t, time.Second)

	for i := 1; i <= 45; i++ {
		require.NoError(t, in.Send(snapshotOf(uint64(i), 0)))
		agg.Drain()
		_, ok := agg.Tick(clock.Advance(time.Second))
		require.True(t, ok)
	}

	rates := agg.History().Rates()
	require.Len(t, rates, metrics.DefaultHistorySize)
	assert.Equal(t, 16.0, rates[0], "oldest retained is interval 16")
	assert.Equal(t, 45.0, rates[len(rates)-1])
	assert.Len(t, agg.History().Violations(), metrics.DefaultHistorySize)
}

func TestAggregator_ClosedCommandQueueIsNotFatal(t *testing.T) {
	var observed []metrics.Report
	sink := ReportSinkFunc(func(r metrics.Report) { observed = append(observed, r) })
	agg, in, out, clock := newTestAggregator(t, time.Second, sink)
	out.Close()

	require.NoError(t, in.Send(snapshotOf(10, 0)))
	agg.Drain()

	_, ok := agg.Tick(clock.Advance(time.Second))
	require.True(t, ok)
	_, ok = agg.Tick(clock.Advance(time.Second))
	require.True(t, ok)

	assert.Len(t, observed, 2, "sinks still receive reports")
	assert.Equal(t, uint64(2), out.Stats().Dropped)
}

func TestAggregator_RunExitsOnStop(t *testing.T) {
	in := NewQueue[metrics.Snapshot]()
	out := NewQueue[Command]()
	agg := NewAggregator(AggregatorConfig{
		Interval:     10 * time.Millisecond,
		PollInterval: time.Millisecond,
	}, in, out)
	stop := NewStopSignal()

	done := make(chan struct{})
	go func() {
		agg.Run(stop)
		close(done)
	}()

	require.NoError(t, in.Send(snapshotOf(42, 0)))
	require.Eventually(t, func() bool { return out.Len() > 0 }, 2*time.Second, time.Millisecond)

	stop.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("aggregator did not stop")
	}
	assert.Equal(t, uint64(42), agg.Total().TotalEvents)
}
