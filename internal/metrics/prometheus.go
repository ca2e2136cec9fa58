/*
Copyright © 2025 Denis Khalturin
All rights reserved.

Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are met:

1. Redistributions of source code must retain the above copyright notice,
   this list of conditions and the following disclaimer.

2. Redistributions in binary form must reproduce the above copyright notice,
   this list of conditions and the following disclaimer in the documentation
   and/or other materials provided with the distribution.

3. Neither the name of the copyright holder nor the names of its contributors
   may be used to endorse or promote products derived from this software
   without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
POSSIBILITY OF SUCH DAMAGE.
*/
// prettier-ignore-end
package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// verificationItem is a composite key for verification metrics.
// It combines the outcome with the signing algorithm seen on the document.
type verificationItem struct {
	Result    string
	Algorithm string
}

// Collector is a Prometheus collector tracking signing activity.
// It maintains counters for issued signatures per algorithm, verification
// outcomes, and agreement transitions.
// Implements prometheus.Collector interface for custom metrics collection.
type Collector struct {
	signatures    sync.Map
	verifications sync.Map
	agreements    sync.Map
}

// NewCollector creates and registers a new Collector instance with Prometheus.
// Panics if registration with Prometheus fails.
func NewCollector() *Collector {
	c := new(Collector)
	prometheus.MustRegister(c)
	return c
}

// NewUnregisteredCollector creates a Collector without registering it.
// Used by tests and by embedders that manage their own registry.
func NewUnregisteredCollector() *Collector {
	return new(Collector)
}

// Describe implements prometheus.Collector interface.
// Returns an empty description as metrics are dynamically generated during collection.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector interface.
// Gathers and sends all signing metrics to Prometheus:
// - jacs_signatures_total: signatures issued per algorithm (counter)
// - jacs_verifications_total: verification outcomes per result and algorithm (counter)
// - jacs_agreement_events_total: agreement transitions per event (counter)
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.signatures.Range(func(k, v any) bool {
		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc(
				"jacs_signatures_total",
				"Number of signatures issued per algorithm",
				[]string{"algorithm"},
				nil,
			),
			prometheus.CounterValue,
			v.(float64),
			k.(string),
		)
		return true
	})

	c.verifications.Range(func(k, v any) bool {
		item := k.(verificationItem)

		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc(
				"jacs_verifications_total",
				"Number of verification outcomes per result and algorithm",
				[]string{"result", "algorithm"},
				nil,
			),
			prometheus.CounterValue,
			v.(float64),
			item.Result,
			item.Algorithm,
		)
		return true
	})

	c.agreements.Range(func(k, v any) bool {
		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc(
				"jacs_agreement_events_total",
				"Number of agreement transitions per event",
				[]string{"event"},
				nil,
			),
			prometheus.CounterValue,
			v.(float64),
			k.(string),
		)
		return true
	})
}

// IncSignature increments the signature counter for an algorithm.
func (c *Collector) IncSignature(algorithm string) {
	if c == nil {
		return
	}

	val, _ := c.signatures.LoadOrStore(algorithm, 0.0)
	c.signatures.Store(algorithm, val.(float64)+1)
}

// IncVerification increments the verification counter for an outcome.
func (c *Collector) IncVerification(valid bool, algorithm string) {
	if c == nil {
		return
	}

	item := verificationItem{Result: "invalid", Algorithm: algorithm}
	if valid {
		item.Result = "valid"
	}

	val, _ := c.verifications.LoadOrStore(item, 0.0)
	c.verifications.Store(item, val.(float64)+1)
}

// IncAgreementEvent increments the agreement transition counter for an event.
// Events: signed, completed, expired, rejected.
func (c *Collector) IncAgreementEvent(event string) {
	if c == nil {
		return
	}

	val, _ := c.agreements.LoadOrStore(event, 0.0)
	c.agreements.Store(event, val.(float64)+1)
}

// Root is a plain index handler for the metrics listener.
func Root(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "jacs metrics endpoint; see /metrics")
}
