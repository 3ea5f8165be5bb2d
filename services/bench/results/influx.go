// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/EnsembleBench/services/bench/engine"
)

// Measurement is the InfluxDB measurement of per-fold metrics.
const Measurement = "ensemble_fold_metrics"

// influxFields are the field names of metrics.Names, in Values order.
var influxFields = []string{"mfm", "gmean", "accuracy", "precision", "recall", "f1"}

// PointWriter writes points. api.WriteAPIBlocking satisfies it.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink writes one point per fold.
type InfluxSink struct {
	client influxdb2.Client
	writer PointWriter
	runID  string
	now    func() time.Time
}

// NewInfluxSink connects to InfluxDB.
func NewInfluxSink(cfg InfluxConfig, runID string) (*InfluxSink, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx sink needs url, org and bucket")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		runID:  runID,
		now:    time.Now,
	}, nil
}

// NewInfluxSinkWithWriter creates a sink on an existing writer.
func NewInfluxSinkWithWriter(w PointWriter, runID string) *InfluxSink {
	return &InfluxSink{writer: w, runID: runID, now: time.Now}
}

// Points builds the points of a Result Set.
func (s *InfluxSink) Points(rs *engine.ResultSet) []*write.Point {
	ts := s.now()
	points := make([]*write.Point, 0, len(rs.Table.Folds))
	for i, fold := range rs.Table.Folds {
		p := influxdb2.NewPointWithMeasurement(Measurement).
			AddTag("dataset", rs.Cell.Dataset).
			AddTag("imbalance", rs.Cell.ImbalanceName()).
			AddTag("generation", string(rs.Cell.Generation)).
			AddTag("selection", string(rs.Cell.Selection)).
			AddTag("noise", strconv.Itoa(rs.Cell.Noise)).
			AddTag("fold", fold).
			AddTag("deployable", strconv.FormatBool(rs.Deployable)).
			SetTime(ts)
		if s.runID != "" {
			p.AddTag("run_id", s.runID)
		}
		for j, v := range rs.Table.Rows[i] {
			if j < len(influxFields) {
				p.AddField(influxFields[j], v)
			}
		}
		points = append(points, p)
	}
	return points
}

// Save implements Sink.
func (s *InfluxSink) Save(ctx context.Context, rs *engine.ResultSet) error {
	points := s.Points(rs)
	if len(points) == 0 {
		return nil
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d points for %s: %w", len(points), rs.Cell.Key(), err)
	}
	return nil
}

// Close releases the client.
func (s *InfluxSink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
