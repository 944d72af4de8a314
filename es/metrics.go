/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package es

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buckets = []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

	MetricOperations = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "es_operation_seconds",
			Help:    "A histogram of latencies for title import and export operations",
			Buckets: buckets,
		},
		[]string{"op"},
	)
	MetricResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "es_responses",
			Help: "Return codes from title import and export operations",
		},
		[]string{"op", "code"},
	)
	MetricContentBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "es_content_bytes",
			Help: "Plaintext content bytes committed by imports or read by exports",
		},
		[]string{"direction"},
	)
)

func observe(op string, start time.Time, err error) {
	dur := time.Since(start).Seconds()
	scode := strconv.FormatInt(int64(CodeOf(err)), 10)
	MetricOperations.WithLabelValues(op).Observe(dur)
	MetricResponses.WithLabelValues(op, scode).Inc()
}
