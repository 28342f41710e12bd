package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/gin-gonic/gin"
)

func TestCreatePaymentRejectsMissingFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/payments", createPaymentHandler())

	body := strings.NewReader(`{"reference_number": "PAY-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/payments", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"CustomerId", "PaymentDate", "Amount"} {
		if resp.Errors[field] != "required" {
			t.Errorf("errors[%q] = %q, want \"required\"", field, resp.Errors[field])
		}
	}
}

func TestCreateInvoiceRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/invoices", createInvoiceHandler())

	req := httptest.NewRequest(http.MethodPost, "/invoices", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestActorContextStampsCorrelationId(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(actorContext())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("X-Correlation-Id") == "" {
		t.Error("expected a generated correlation id header")
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Correlation-Id", "cid-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Correlation-Id"); got != "cid-123" {
		t.Errorf("correlation id = %q, want \"cid-123\"", got)
	}
}

func TestWriteModelErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation error", utils.NewValidationError("code", "is required"), http.StatusBadRequest},
		{"record not found", utils.ErrorRecordNotFound, http.StatusNotFound},
		{"missing actor", utils.ErrorMissingActor, http.StatusUnauthorized},
		{"credit limit", utils.ErrorCreditLimitExceeded, http.StatusConflict},
		{"over application", utils.ErrorOverApplication, http.StatusConflict},
		{"immutable document", utils.ErrorImmutableDocument, http.StatusConflict},
		{"unexpected", errors.New("db is down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			writeModelError(c, tt.err)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.example , ,https://b.example ")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("splitAndTrim = %#v", got)
	}
	if splitAndTrim("  ") != nil {
		t.Error("blank input should yield nil")
	}
}
