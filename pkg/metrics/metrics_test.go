package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lborres/bantay/core"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Confirmation(core.VerifyEmailChange, "ok")
	c.Confirmation(core.VerifyEmailChange, "ok")
	c.Confirmation(core.VerifyPasswordReset, "TOKEN_EXPIRED")
	c.SessionsRevoked("password-reset", 3)
	c.SessionsRevoked("password-reset", 0)
	c.MethodChange("remove", "LAST_METHOD")
	c.EmailSent("verify-email", nil)
	c.EmailSent("verify-email", errors.New("smtp down"))
	c.CacheLookup(true)

	if got := testutil.ToFloat64(c.confirmations.WithLabelValues("email-change", "ok")); got != 2 {
		t.Errorf("confirmations{email-change,ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.confirmations.WithLabelValues("password-reset", "TOKEN_EXPIRED")); got != 1 {
		t.Errorf("confirmations{password-reset,TOKEN_EXPIRED} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.sessionsRevoked.WithLabelValues("password-reset")); got != 3 {
		t.Errorf("sessions_revoked = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.emails.WithLabelValues("verify-email", "false")); got != 1 {
		t.Errorf("emails{success=false} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.methodChanges.WithLabelValues("remove", "LAST_METHOD")); got != 1 {
		t.Errorf("method_changes = %v, want 1", got)
	}
}

func TestResult(t *testing.T) {
	if Result(nil) != "ok" {
		t.Error("Result(nil) != ok")
	}
	if got := Result(core.ErrLastMethod); got != "LAST_METHOD" {
		t.Errorf("Result(ErrLastMethod) = %q", got)
	}
	if got := Result(errors.New("x")); got != "INTERNAL_ERROR" {
		t.Errorf("Result(plain) = %q", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.CacheLookup(false)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "bantay_session_cache_lookups_total") {
		t.Errorf("metrics output missing cache lookups:\n%s", body)
	}
}
