package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	foliosIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taller_folios_issued_total",
		Help: "Fiscal folios issued by the allocator.",
	})

	dispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taller_dispatches_total",
		Help: "Work order dispatch attempts by result.",
	}, []string{"result"})

	invoicesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taller_invoices_issued_total",
		Help: "Invoices committed with an assigned folio.",
	})
)
