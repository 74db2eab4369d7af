// README: Prometheus collector for claim, buffer, and dispatch metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	claimConflicts   prometheus.Counter
	dispatchWaves    prometheus.Counter
	ordersDispatched prometheus.Counter
	urgentBypasses   prometheus.Counter
	notifyFailures   prometheus.Counter
	safetyNetFires   prometheus.Counter

	bufferedOrders prometheus.Gauge
	ovenItems      prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		claimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "expo_claim_conflicts_total",
			Help: "Claim attempts lost to a concurrent claimant",
		}),
		dispatchWaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "expo_dispatch_waves_total",
			Help: "Buffer waves released (timer expiry or manual)",
		}),
		ordersDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "expo_orders_dispatched_total",
			Help: "Orders moved to ready, grouped and individual",
		}),
		urgentBypasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "expo_urgent_bypasses_total",
			Help: "Orders that skipped the buffer via the urgency bypass",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "expo_notify_failures_total",
			Help: "Failed ready-notification calls to the upstream collaborator",
		}),
		safetyNetFires: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "expo_safety_net_fires_total",
			Help: "Auto-dispatches triggered by the oven safety net",
		}),
		bufferedOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "expo_buffered_orders",
			Help: "Orders currently in waiting_buffer",
		}),
		ovenItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "expo_oven_items",
			Help: "Items currently in the oven",
		}),
	}

	prometheus.MustRegister(
		c.claimConflicts,
		c.dispatchWaves,
		c.ordersDispatched,
		c.urgentBypasses,
		c.notifyFailures,
		c.safetyNetFires,
		c.bufferedOrders,
		c.ovenItems,
	)
	return c
}

func (c *Collector) RecordClaimConflict()    { c.claimConflicts.Inc() }
func (c *Collector) RecordUrgentBypass()     { c.urgentBypasses.Inc() }
func (c *Collector) RecordNotifyFailure()    { c.notifyFailures.Inc() }
func (c *Collector) RecordSafetyNetFire()    { c.safetyNetFires.Inc() }
func (c *Collector) SetBufferedOrders(n int) { c.bufferedOrders.Set(float64(n)) }
func (c *Collector) SetOvenItems(n int)      { c.ovenItems.Set(float64(n)) }

func (c *Collector) RecordDispatchWave(orders int) {
	c.dispatchWaves.Inc()
	c.ordersDispatched.Add(float64(orders))
}
