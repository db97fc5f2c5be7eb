package resendapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/shineum/resend-lite/internal/provider"
	"github.com/shineum/resend-lite/resend"
	"github.com/shineum/resend-lite/resendtest"
)

var _ provider.Provider = (*Provider)(nil)

func TestSend_Accepted(t *testing.T) {
	t.Parallel()

	srv := resendtest.NewServer()
	defer srv.Close()

	p := New(resend.New("re_123", resend.WithBaseURL(srv.URL)))
	resp, err := p.Send(context.Background(), &resend.Payload{
		From:    "a@x.com",
		To:      resend.Recipients{"b@x.com"},
		Subject: "hi",
		HTML:    "<p>hi</p>",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ID == "" {
		t.Fatal("expected an id")
	}

	reqs := srv.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests: got %d, want 1", len(reqs))
	}
	want := `{"from":"a@x.com","to":"b@x.com","subject":"hi","html":"<p>hi</p>"}`
	if string(reqs[0].Body) != want {
		t.Errorf("body:\ngot  %s\nwant %s", reqs[0].Body, want)
	}
}

func TestSend_RemoteErrorIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := resendtest.NewServer()
	defer srv.Close()

	p := New(resend.New("re_123", resend.WithBaseURL(srv.URL)))
	resp, err := p.Send(context.Background(), &resend.Payload{
		To:      resend.Recipients{"b@x.com"},
		Subject: "hi",
		Text:    "hi",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("HTTPStatus: got %d, want 422", resp.HTTPStatus)
	}

	var remote *resend.RemoteError
	if !errors.As(resp.Err(), &remote) || remote.Name != "validation_error" {
		t.Errorf("Err: got %v", resp.Err())
	}
	var raw map[string]any
	if err := json.Unmarshal(resp.Raw, &raw); err != nil {
		t.Errorf("Raw should hold the response body: %v", err)
	}
}

func TestSend_TransportError(t *testing.T) {
	t.Parallel()

	srv := resendtest.NewServer()
	srv.Close()

	p := New(resend.New("re_123", resend.WithBaseURL(srv.URL)))
	_, err := p.Send(context.Background(), &resend.Payload{
		From: "a@x.com", To: resend.Recipients{"b@x.com"}, Subject: "hi", Text: "hi",
	})

	var terr *resend.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *resend.TransportError, got %v", err)
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	if got := New(resend.New("re_123")).Name(); got != "resend" {
		t.Errorf("Name(): got %q, want %q", got, "resend")
	}
}
