package sbissync

import (
	"context"
	"encoding/json"
)

// SbisService is one subscription entry as the provider reports it for a
// contract. Optional fields stay pointers so absence is distinguishable from
// zero values; the reconciler applies the documented defaults.
type SbisService struct {
	ID            string      `json:"id"`
	Code          string      `json:"code"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Price         json.Number `json:"price"`
	BillingPeriod string      `json:"billing_period"`
	StartDate     string      `json:"start_date"`
	EndDate       string      `json:"end_date"`
	IsActive      *bool       `json:"is_active"`
}

func (s SbisService) Active() bool {
	// Absent means active; only an explicit false deactivates.
	return s.IsActive == nil || *s.IsActive
}

type SbisInvoice struct {
	ID          string      `json:"id"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
	ServiceId   string      `json:"service_id"`
	PeriodStart string      `json:"period_start"`
	PeriodEnd   string      `json:"period_end"`
	Status      string      `json:"status"`
	Number      string      `json:"number"`
}

const invoiceStatusPaid = "paid"

// provider is the slice of the SBIS API this service consumes. sbisClient is
// the real implementation; tests substitute fakes.
type provider interface {
	Services(ctx context.Context, contractId string) ([]SbisService, error)
	Invoices(ctx context.Context, contractId string) ([]SbisInvoice, error)
}

type SyncPubSubPayload struct {
	ClientId    int    `json:"client_id"`
	TriggeredBy string `json:"triggered_by"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}
