package webhook

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kbukum/eventkit/config"
	"github.com/kbukum/eventkit/di"
	"github.com/kbukum/eventkit/dispatch"
	"github.com/kbukum/eventkit/errors"
	"github.com/kbukum/eventkit/params"
)

type ledger struct{}

func (l *ledger) Book(id string) string { return "booked:" + id }

func (l *ledger) Reject(id string) error { return stderrors.New("rejected " + id) }

func newSource(t *testing.T) *Source {
	t.Helper()
	src, err := New(config.WebhookConfig{Name: "hooks", Addr: "127.0.0.1:0", MaxBodyBytes: 64})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return src
}

func wire(t *testing.T, src *Source) {
	t.Helper()
	def := di.Define("ledger", func(ctx context.Context, _ di.Deps) (*ledger, error) {
		return &ledger{}, nil
	})
	c := di.NewContainer()
	c.Register(def)
	f, err := dispatch.NewFactory(c, params.NewRegistry(nil), dispatch.WithoutMetrics(), dispatch.WithoutTracing())
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}
	keyed := dispatch.NewKeyedCategory(f, "hooks", src, KeyOf)
	if err := keyed.Listen(context.Background(), "order.created", def, "Book",
		dispatch.WithArgs(params.Key(0, "data"))); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	if err := keyed.Listen(context.Background(), "order.voided", def, "Reject",
		dispatch.WithArgs(params.Key(0, "data"))); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
}

func post(src *Source, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	src.Handler().ServeHTTP(rec, req)
	return rec
}

func TestKeyOf(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
		ok      bool
	}{
		{"value", Message{Event: "a"}, "a", true},
		{"pointer", &Message{Event: "b"}, "b", true},
		{"nil pointer", (*Message)(nil), "", false},
		{"other", 1, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := KeyOf(tt.payload)
			if got != tt.want || ok != tt.ok {
				t.Errorf("KeyOf() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(config.WebhookConfig{}); !errors.IsCode(err, errors.ErrCodeValidation) {
		t.Errorf("expected VALIDATION_FAILED for missing name, got %v", err)
	}
	if _, err := New(config.WebhookConfig{Name: "h", Path: "events"}); !errors.IsCode(err, errors.ErrCodeValidation) {
		t.Errorf("expected VALIDATION_FAILED for relative path, got %v", err)
	}
}

func TestSource_DeliversByEvent(t *testing.T) {
	src := newSource(t)
	wire(t, src)

	rec := post(src, "/events/order.created", `"o-1"`, http.Header{RequestIDHeader: {"req-7"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp DataResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0] != "booked:o-1" {
		t.Errorf("expected [booked:o-1], got %v", resp.Data)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "req-7" {
		t.Errorf("expected request id echoed, got %q", got)
	}

	// No listener for the event: nothing runs, the request still succeeds.
	rec = post(src, "/events/order.shipped", `{}`, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for an event without listeners, got %d", rec.Code)
	}
	if received, failed := src.Stats(); received != 2 || failed != 0 {
		t.Errorf("unexpected stats received=%d failed=%d", received, failed)
	}
}

func TestSource_ListenerErrorIsReported(t *testing.T) {
	src := newSource(t)
	wire(t, src)

	rec := post(src, "/events/order.voided", `"o-2"`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !strings.Contains(resp.Error.Message, "rejected o-2") {
		t.Errorf("expected listener error in response, got %+v", resp.Error)
	}
	if _, failed := src.Stats(); failed != 1 {
		t.Errorf("expected 1 failed, got %d", failed)
	}
}

func TestSource_WithoutSubscriber(t *testing.T) {
	src := newSource(t)
	rec := post(src, "/events/anything", `{}`, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestSource_BodyTooLarge(t *testing.T) {
	src := newSource(t)
	wire(t, src)
	rec := post(src, "/events/order.created", `"`+strings.Repeat("x", 128)+`"`, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestSource_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain", stderrors.New("boom"), http.StatusInternalServerError},
		{"capacity", errors.CapacityExceeded("ledger", 1), http.StatusTooManyRequests},
		{"validation", errors.Validation("bad"), http.StatusBadRequest},
		{"not registered", errors.NotRegistered("ledger"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := errorResponse(tt.err); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSource_ServesOverHTTP(t *testing.T) {
	src := newSource(t)
	wire(t, src)

	if h := src.Health(context.Background()); h.Status != "degraded" {
		t.Errorf("expected degraded before start, got %s", h.Status)
	}
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if h := src.Health(context.Background()); h.Status != "healthy" {
		t.Errorf("expected healthy while running, got %s", h.Status)
	}

	resp, err := http.Post("http://"+src.Addr()+"/events/order.created", "application/json",
		strings.NewReader(`"o-3"`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	var body DataResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || len(body.Data) != 1 || body.Data[0] != "booked:o-3" {
		t.Errorf("unexpected response %d %v", resp.StatusCode, body.Data)
	}

	if err := src.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := src.Stop(context.Background()); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}
