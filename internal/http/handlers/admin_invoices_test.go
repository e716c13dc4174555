package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/quitaai/cobranca-ai-platform/internal/invoices"
	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

type fakeInvoiceLookup struct {
	open   []invoices.Invoice
	second *invoices.SecondCopyResponse
	fail   bool
}

func (f *fakeInvoiceLookup) OpenInvoices(context.Context, string) ([]invoices.Invoice, error) {
	if f.fail {
		return nil, errors.New("portal down")
	}
	return f.open, nil
}

func (f *fakeInvoiceLookup) SecondCopy(context.Context, invoices.SecondCopyRequest) (*invoices.SecondCopyResponse, error) {
	if f.fail {
		return nil, errors.New("portal down")
	}
	return f.second, nil
}

func newInvoicesRouter(lookup InvoiceLookup) *chi.Mux {
	h := NewAdminInvoicesHandler(lookup, logging.New("error"))
	r := chi.NewRouter()
	r.Get("/admin/invoices/{document}", h.Open)
	r.Post("/admin/invoices/{invoiceID}/second-copy", h.SecondCopy)
	return r
}

func TestAdminOpenInvoices(t *testing.T) {
	r := newInvoicesRouter(&fakeInvoiceLookup{open: []invoices.Invoice{
		{InvoiceID: "INV-001", AmountCents: 123456, Status: "open"},
	}})

	req := httptest.NewRequest(http.MethodGet, "/admin/invoices/12345678901", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "INV-001")
}

func TestAdminOpenInvoicesLookupFailure(t *testing.T) {
	r := newInvoicesRouter(&fakeInvoiceLookup{fail: true})

	req := httptest.NewRequest(http.MethodGet, "/admin/invoices/12345678901", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAdminSecondCopy(t *testing.T) {
	r := newInvoicesRouter(&fakeInvoiceLookup{second: &invoices.SecondCopyResponse{
		Success:   true,
		InvoiceID: "INV-001",
		BoletoURL: "https://docs.example.com/boleto/INV-001.pdf",
	}})

	req := httptest.NewRequest(http.MethodPost, "/admin/invoices/INV-001/second-copy", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "boleto_url")
}

func TestAdminSecondCopyScrapeFailure(t *testing.T) {
	r := newInvoicesRouter(&fakeInvoiceLookup{second: &invoices.SecondCopyResponse{
		Success: false,
		Error:   "portal rejected the request",
	}})

	req := httptest.NewRequest(http.MethodPost, "/admin/invoices/INV-001/second-copy", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
