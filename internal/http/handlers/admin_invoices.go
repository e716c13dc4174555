package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quitaai/cobranca-ai-platform/internal/invoices"
	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

// InvoiceLookup is the slice of the invoice-scraper client the admin API
// uses.
type InvoiceLookup interface {
	OpenInvoices(ctx context.Context, document string) ([]invoices.Invoice, error)
	SecondCopy(ctx context.Context, req invoices.SecondCopyRequest) (*invoices.SecondCopyResponse, error)
}

// AdminInvoicesHandler lets operators inspect a debtor's open invoices and
// reissue boletos through the scraper sidecar.
type AdminInvoicesHandler struct {
	lookup InvoiceLookup
	logger *logging.Logger
}

func NewAdminInvoicesHandler(lookup InvoiceLookup, logger *logging.Logger) *AdminInvoicesHandler {
	if lookup == nil {
		panic("handlers: invoice lookup cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminInvoicesHandler{lookup: lookup, logger: logger}
}

// Open is mounted at GET /admin/invoices/{document}.
func (h *AdminInvoicesHandler) Open(w http.ResponseWriter, r *http.Request) {
	document := chi.URLParam(r, "document")
	if document == "" {
		http.Error(w, "document is required", http.StatusBadRequest)
		return
	}

	open, err := h.lookup.OpenInvoices(r.Context(), document)
	if err != nil {
		h.logger.Error("open invoice lookup failed", "error", err)
		http.Error(w, "invoice lookup failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document": document,
		"invoices": open,
	})
}

// SecondCopy is mounted at POST /admin/invoices/{invoiceID}/second-copy.
func (h *AdminInvoicesHandler) SecondCopy(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "invoiceID")
	if invoiceID == "" {
		http.Error(w, "invoice id is required", http.StatusBadRequest)
		return
	}

	resp, err := h.lookup.SecondCopy(r.Context(), invoices.SecondCopyRequest{InvoiceID: invoiceID})
	if err != nil {
		h.logger.Error("second copy request failed", "invoice_id", invoiceID, "error", err)
		http.Error(w, "second copy request failed", http.StatusBadGateway)
		return
	}
	if !resp.Success {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": resp.Error})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"invoice_id":  resp.InvoiceID,
		"boleto_url":  resp.BoletoURL,
		"boleto_line": resp.BoletoLine,
		"pix_code":    resp.PixCode,
	})
}
