package entity

import "testing"

func TestQuotationTransitions(t *testing.T) {
	allowed := [][2]string{
		{QuotationStatusDraft, QuotationStatusSent},
		{QuotationStatusSent, QuotationStatusApproved},
		{QuotationStatusSent, QuotationStatusRejected},
		{QuotationStatusApproved, QuotationStatusConverted},
	}
	for _, tr := range allowed {
		if !QuotationCanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be allowed", tr[0], tr[1])
		}
	}

	denied := [][2]string{
		{QuotationStatusDraft, QuotationStatusApproved},
		{QuotationStatusDraft, QuotationStatusConverted},
		{QuotationStatusRejected, QuotationStatusSent},
		{QuotationStatusConverted, QuotationStatusDraft},
		{QuotationStatusApproved, QuotationStatusRejected},
	}
	for _, tr := range denied {
		if QuotationCanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be rejected", tr[0], tr[1])
		}
	}
}

func TestWorkOrderTransitions(t *testing.T) {
	allowed := [][2]string{
		{WOStatusPending, WOStatusInProgress},
		{WOStatusPending, WOStatusCompleted},
		{WOStatusInProgress, WOStatusCompleted},
		{WOStatusCompleted, WOStatusInvoiced},
	}
	for _, tr := range allowed {
		if !WorkOrderCanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be allowed", tr[0], tr[1])
		}
	}

	denied := [][2]string{
		{WOStatusPending, WOStatusInvoiced},
		{WOStatusInProgress, WOStatusPending},
		{WOStatusInvoiced, WOStatusCompleted},
		{WOStatusCompleted, WOStatusPending},
	}
	for _, tr := range denied {
		if WorkOrderCanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be rejected", tr[0], tr[1])
		}
	}
}
