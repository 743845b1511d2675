package lending

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/prestana/prestana/internal/observability"
)

func newTestRouter(repo *memoryLoanRepo) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, newTestService(repo), observability.NewMetrics())
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func doJSON(t *testing.T, router chi.Router, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateLoan(t *testing.T) {
	repo := newMemoryLoanRepo()
	router := newTestRouter(repo)

	start := time.Now().Format("2006-01-02")
	first := time.Now().AddDate(0, 1, 0).Format("2006-01-02")
	rec := doJSON(t, router, http.MethodPost, "/loans", map[string]any{
		"business_id":           uuid.NewString(),
		"amount":                "30000",
		"interest_rate_monthly": "0.15",
		"duration":              6,
		"frequency":             "monthly",
		"lending_type":          "fixed",
		"start_date":            start,
		"first_payment_date":    first,
		"penalty":               map[string]any{"value": "100"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var loan Loan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loan))
	require.Len(t, loan.Schedule, 6)
	require.Equal(t, LoanStatusActive, loan.Status)
}

func TestHandlerCreateLoanRejectsUnknownType(t *testing.T) {
	router := newTestRouter(newMemoryLoanRepo())

	rec := doJSON(t, router, http.MethodPost, "/loans", map[string]any{
		"business_id":           uuid.NewString(),
		"amount":                "1000",
		"interest_rate_monthly": "0.1",
		"duration":              3,
		"frequency":             "monthly",
		"lending_type":          "balloon",
		"start_date":            "2026-01-05",
		"first_payment_date":    "2026-02-05",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerCreateLoanRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(newMemoryLoanRepo())

	req := httptest.NewRequest(http.MethodPost, "/loans", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerGetLoanNotFound(t *testing.T) {
	router := newTestRouter(newMemoryLoanRepo())

	rec := doJSON(t, router, http.MethodGet, "/loans/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRegisterPayment(t *testing.T) {
	repo := newMemoryLoanRepo()
	svc := newTestService(repo)
	loan := createFixedLoan(t, svc)
	router := newTestRouter(repo)

	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/loans/%s/payments", loan.ID), map[string]any{
		"amount": "9500",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var payment Payment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payment))
	require.Equal(t, loan.ID, payment.LoanID)

	stored, err := repo.GetLoan(t.Context(), loan.ID)
	require.NoError(t, err)
	requireDecimal(t, dec(4500), stored.Schedule[0].PaidInterest)
	requireDecimal(t, dec(5000), stored.Schedule[0].PaidCapital)
}

func TestHandlerRegisterPaymentOverpayRejected(t *testing.T) {
	repo := newMemoryLoanRepo()
	svc := newTestService(repo)
	loan := createFixedLoan(t, svc)
	router := newTestRouter(repo)

	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/loans/%s/payments", loan.ID), map[string]any{
		"amount": "999999",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerPenaltyPreviewBadDate(t *testing.T) {
	repo := newMemoryLoanRepo()
	svc := newTestService(repo)
	loan := createFixedLoan(t, svc)
	router := newTestRouter(repo)

	rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/loans/%s/penalty?as_of=not-a-date", loan.ID), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerListLoansRequiresBusinessID(t *testing.T) {
	router := newTestRouter(newMemoryLoanRepo())

	rec := doJSON(t, router, http.MethodGet, "/loans", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
