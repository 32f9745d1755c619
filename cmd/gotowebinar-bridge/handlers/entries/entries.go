// Package entries receives submitted form entries and hands them to the
// registrar
package entries

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wrale/gotowebinar-bridge/cmd/gotowebinar-bridge/handlers/common"
	"github.com/wrale/gotowebinar-bridge/internal/registration"
	"github.com/wrale/gotowebinar-bridge/internal/validation"
)

// Processor runs the feeds of a form for an entry
type Processor interface {
	ProcessEntry(ctx context.Context, entry *registration.Entry) ([]registration.Result, error)
	ProcessPayment(ctx context.Context, entry *registration.Entry) ([]registration.Result, error)
}

// Handler serves POST /forms/{formID}/entries and the payment trigger
// POST /forms/{formID}/entries/paid
type Handler struct {
	processor Processor
	logger    *zap.Logger
}

// New creates an entries handler
func New(processor Processor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{processor: processor, logger: logger}
}

type entryRequest struct {
	ID            string            `json:"id"`
	Values        map[string]string `json:"values"`
	PaymentStatus string            `json:"paymentStatus"`
}

// Response lists the outcome of every feed that ran for the entry
type Response struct {
	EntryID string                `json:"entryId"`
	FormID  string                `json:"formId"`
	Results []registration.Result `json:"results"`
}

// Routes returns the router for the entry endpoints, mounted under
// /forms/{formID}/entries
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.ServeHTTP)
	r.Post("/paid", h.Paid)
	return r
}

// ServeHTTP processes one entry. Feed failures do not fail the request;
// they are reported per result and in the feed error log.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, "entry not processed", h.processor.ProcessEntry)
}

// Paid runs the feeds held back until payment for an entry whose payment
// has completed
func (h *Handler) Paid(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, "paid entry not processed", h.processor.ProcessPayment)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request, failure string,
	run func(context.Context, *registration.Entry) ([]registration.Result, error)) {
	formID := strings.TrimSpace(chi.URLParam(r, "formID"))
	if err := validation.Required(validation.FieldFormID, formID, "Form ID required."); err != nil {
		common.WriteDomainError(w, err)
		return
	}

	var req entryRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteDomainError(w, err)
		return
	}
	if err := validation.Required("id", req.ID, "Entry ID required."); err != nil {
		common.WriteDomainError(w, err)
		return
	}

	entry := &registration.Entry{
		ID:            req.ID,
		FormID:        formID,
		Values:        req.Values,
		PaymentStatus: strings.TrimSpace(req.PaymentStatus),
	}
	if entry.Values == nil {
		entry.Values = map[string]string{}
	}

	results, err := run(r.Context(), entry)
	if err != nil {
		h.logger.Warn(failure,
			zap.String("form_id", formID),
			zap.String("entry_id", entry.ID),
			zap.Error(err))
		common.WriteDomainError(w, err)
		return
	}

	common.WriteJSON(w, http.StatusOK, Response{
		EntryID: entry.ID,
		FormID:  formID,
		Results: results,
	})
}
