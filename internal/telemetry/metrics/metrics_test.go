package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestHandlerExposesRegisteredCollectors(t *testing.T) {
	Init()
	Init()
	SessionCreated()
	SessionEnded("logout")
	LoginOutcome("locked")
	ThreatReported("sql_injection", "critical")
	Escalated("brute_force")
	ObserveRPC("/accessguard.auth.v1.AuthService/Login", "OK", 5*time.Millisecond)

	body := scrape(t)
	for _, want := range []string{
		"accessguard_sessions_created_total",
		`accessguard_sessions_ended_total{reason="logout"}`,
		`accessguard_logins_total{outcome="locked"}`,
		`accessguard_threats_total{severity="critical",type="sql_injection"}`,
		`accessguard_escalations_total{type="brute_force"}`,
		"accessguard_grpc_request_duration_seconds_bucket",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %s", want)
		}
	}
}
