package browser

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/expresspay/expresspay-go/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prefixObserver resolves on the first navigation under prefix.
type prefixObserver struct {
	prefix string

	mu     sync.Mutex
	seen   []ports.Navigation
	errs   []error
	result *ports.Navigation
}

func (o *prefixObserver) OnNavigate(nav ports.Navigation) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, nav)
	if o.result != nil {
		return true
	}
	if strings.HasPrefix(nav.URL.String(), o.prefix) {
		o.result = &nav
		return true
	}
	return false
}

func (o *prefixObserver) OnNavigationError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func TestHeadless_FollowsAutoSubmitForm(t *testing.T) {
	var termHits int
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/acs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "req-1", r.PostForm.Get("PaReq"))

		_, _ = w.Write([]byte(`<html><body onload="document.forms[0].submit()">
			<form method="POST" action="` + r.PostForm.Get("TermUrl") + `">
				<input type="hidden" name="PaRes" value="res-1">
				<input type="hidden" name="MD" value="` + r.PostForm.Get("MD") + `">
				<input type="submit" value="Continue">
			</form></body></html>`))
	})
	mux.HandleFunc("/term", func(w http.ResponseWriter, r *http.Request) {
		termHits++
	})

	observer := &prefixObserver{prefix: server.URL + "/term"}
	err := NewHeadless().Load(context.Background(), ports.ChallengeRequest{
		AttemptID: "att-1",
		URL:       server.URL + "/acs",
		Method:    domain.RedirectPOST,
		Params:    map[string]string{"PaReq": "req-1", "MD": "md-1", "TermUrl": server.URL + "/term"},
	}, observer)
	require.NoError(t, err)

	require.NotNil(t, observer.result)
	assert.Equal(t, "res-1", observer.result.Params.Get("PaRes"))
	assert.Equal(t, "md-1", observer.result.Params.Get("MD"))
	assert.Equal(t, "POST", observer.result.Method)
	assert.Zero(t, termHits, "resolved targets are not followed")
	assert.Empty(t, observer.errs)
}

func TestHeadless_ObservesRedirects(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/wallet", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "r1", r.URL.Query().Get("ref"))
		http.Redirect(w, r, "/step", http.StatusFound)
	})
	mux.HandleFunc("/step", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/success?status=ok", http.StatusFound)
	})

	observer := &prefixObserver{prefix: server.URL + "/success"}
	err := NewHeadless().Load(context.Background(), ports.ChallengeRequest{
		AttemptID: "att-1",
		URL:       server.URL + "/wallet",
		Method:    domain.RedirectGET,
		Params:    map[string]string{"ref": "r1"},
	}, observer)
	require.NoError(t, err)

	require.NotNil(t, observer.result)
	assert.Equal(t, "ok", observer.result.Params.Get("status"))
	assert.Len(t, observer.seen, 2)
}

func TestHeadless_InteractionRequired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<form method="post" action="/verify"><input type="password" name="otp"></form>`))
	}))
	defer server.Close()

	observer := &prefixObserver{prefix: "https://shop.example/3ds"}
	err := NewHeadless().Load(context.Background(), ports.ChallengeRequest{
		URL:    server.URL,
		Method: domain.RedirectPOST,
	}, observer)
	require.NoError(t, err)

	require.Len(t, observer.errs, 1)
	assert.True(t, errors.Is(observer.errs[0], ErrInteractionRequired))
}

func TestHeadless_FirstRequestFailureIsLoadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewHeadless().Load(context.Background(), ports.ChallengeRequest{
		URL:    server.URL,
		Method: domain.RedirectPOST,
	}, &prefixObserver{prefix: "https://shop.example"})
	assert.Error(t, err)
}

func TestHeadless_HopLimit(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<form method="post" action="` + server.URL + `/loop"><input type="hidden" name="a" value="b"></form>`))
	}))
	defer server.Close()

	observer := &prefixObserver{prefix: "https://shop.example"}
	err := NewHeadless(WithMaxHops(3), WithTimeout(time.Second)).Load(context.Background(), ports.ChallengeRequest{
		URL:    server.URL,
		Method: domain.RedirectPOST,
	}, observer)
	require.NoError(t, err)

	require.Len(t, observer.errs, 1)
	assert.ErrorIs(t, observer.errs[0], ErrTooManyHops)
}

func TestParseAutoSubmitForm_ResolvesRelativeAction(t *testing.T) {
	base, _ := url.Parse("https://acs.example/path/page")
	form, err := parseAutoSubmitForm(base, []byte(`<form action="../submit"><input type="hidden" name="x" value="1"><textarea name="t">hello</textarea></form>`))
	require.NoError(t, err)

	assert.Equal(t, "https://acs.example/submit", form.Action)
	assert.Equal(t, domain.RedirectGET, form.Method)
	assert.Equal(t, "1", form.Values.Get("x"))
	assert.Equal(t, "hello", form.Values.Get("t"))
}

func TestParseAutoSubmitForm_NoForm(t *testing.T) {
	_, err := parseAutoSubmitForm(nil, []byte(`<p>Thanks</p>`))
	assert.Error(t, err)
}

func TestRelay_Lifecycle(t *testing.T) {
	relay := NewRelay("https://api.example/")
	success, cancel := relay.ReturnURLs("att-1")
	assert.Equal(t, "https://api.example/challenges/att-1/complete", success)
	assert.Equal(t, "https://api.example/challenges/att-1/cancel", cancel)

	observer := &prefixObserver{prefix: success}
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	err := relay.Load(ctx, ports.ChallengeRequest{
		AttemptID: "att-1",
		URL:       "https://acs.example/challenge",
		Method:    domain.RedirectPOST,
		Params:    map[string]string{"PaReq": "abc"},
	}, observer)
	require.NoError(t, err)
	require.True(t, relay.Pending("att-1"))

	page, err := relay.Page("att-1")
	require.NoError(t, err)
	assert.Equal(t, "post", page.Method)

	var buf bytes.Buffer
	require.NoError(t, ChallengeTemplate.Execute(&buf, page))
	assert.Contains(t, buf.String(), `name="PaReq" value="abc"`)
	assert.Contains(t, buf.String(), `action="https://acs.example/challenge"`)

	other, _ := url.Parse("https://acs.example/elsewhere")
	resolved, err := relay.Navigate("att-1", ports.Navigation{URL: other})
	require.NoError(t, err)
	assert.False(t, resolved)

	done, _ := url.Parse(success + "?PaRes=xyz")
	resolved, err = relay.Navigate("att-1", ports.Navigation{URL: done, Params: done.Query()})
	require.NoError(t, err)
	assert.True(t, resolved)
	assert.False(t, relay.Pending("att-1"))

	_, err = relay.Navigate("att-1", ports.Navigation{URL: done})
	assert.ErrorIs(t, err, ErrUnknownChallenge)
}

func TestRelay_ContextEndRemovesChallenge(t *testing.T) {
	relay := NewRelay("https://api.example")
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, relay.Load(ctx, ports.ChallengeRequest{AttemptID: "att-2", URL: "https://acs.example"}, &prefixObserver{}))
	cancel()

	assert.Eventually(t, func() bool { return !relay.Pending("att-2") }, time.Second, 5*time.Millisecond)
}

func TestRelay_RejectsBadRequests(t *testing.T) {
	relay := NewRelay("https://api.example")

	assert.Error(t, relay.Load(context.Background(), ports.ChallengeRequest{URL: "https://acs.example"}, &prefixObserver{}))
	assert.Error(t, relay.Load(context.Background(), ports.ChallengeRequest{AttemptID: "a", URL: "javascript:alert(1)"}, &prefixObserver{}))
}

func TestRelay_Fail(t *testing.T) {
	relay := NewRelay("https://api.example")
	observer := &prefixObserver{}
	require.NoError(t, relay.Load(context.Background(), ports.ChallengeRequest{AttemptID: "att-3", URL: "https://acs.example"}, observer))

	require.NoError(t, relay.Fail("att-3", errors.New("closed by user")))
	assert.Len(t, observer.errs, 1)
	assert.ErrorIs(t, relay.Fail("att-3", errors.New("again")), ErrUnknownChallenge)
}
