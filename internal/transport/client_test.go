package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent records requests to a mux routed test server
type fakeAgent struct {
	chatBodies     []map[string]any
	askBodies      []map[string]any
	feedbackBodies []Feedback
	chatStatus     int
	chatResponse   string
}

func (f *fakeAgent) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/chat", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		json.NewDecoder(req.Body).Decode(&body)
		f.chatBodies = append(f.chatBodies, body)
		if f.chatStatus != 0 {
			w.WriteHeader(f.chatStatus)
		}
		w.Write([]byte(f.chatResponse))
	}).Methods(http.MethodPost)
	r.HandleFunc("/ask", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		json.NewDecoder(req.Body).Decode(&body)
		f.askBodies = append(f.askBodies, body)
		w.Write([]byte(`{"status":"success","answer":"stateless answer"}`))
	}).Methods(http.MethodPost)
	r.HandleFunc("/examples", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"examples":["Top 3 items?","Peak shopping times?"]}`))
	}).Methods(http.MethodGet)
	r.HandleFunc("/feedback", func(w http.ResponseWriter, req *http.Request) {
		var fb Feedback
		json.NewDecoder(req.Body).Decode(&fb)
		f.feedbackBodies = append(f.feedbackBodies, fb)
		w.Write([]byte(`{"status":"received"}`))
	}).Methods(http.MethodPost)
	return r
}

func newFake(t *testing.T, f *fakeAgent) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)
	return srv
}

func TestAskChatEndpoint(t *testing.T) {
	f := &fakeAgent{chatResponse: `{"status":"success","answer":"Tomato, Banana, Apple"}`}
	srv := newFake(t, f)

	c := NewClient(Config{BaseURL: srv.URL + "/"})
	answer, err := c.Ask(context.Background(), "Top 3 items?", "session-1")
	require.NoError(t, err)
	assert.Equal(t, "Tomato, Banana, Apple", answer)

	require.Len(t, f.chatBodies, 1)
	assert.Equal(t, map[string]any{"question": "Top 3 items?", "session_id": "session-1"}, f.chatBodies[0])
}

func TestAskStatelessEndpoint(t *testing.T) {
	f := &fakeAgent{}
	srv := newFake(t, f)

	c := NewClient(Config{BaseURL: srv.URL, Stateless: true})
	answer, err := c.Ask(context.Background(), "Top 3 items?", "session-1")
	require.NoError(t, err)
	assert.Equal(t, "stateless answer", answer)
	assert.Empty(t, f.chatBodies)
	require.Len(t, f.askBodies, 1)
	assert.Equal(t, map[string]any{"question": "Top 3 items?"}, f.askBodies[0])
}

func TestAskFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		response  string
		malformed bool
		detail    string
	}{
		{"server error with detail", http.StatusInternalServerError, `{"detail":"Something went wrong with the AI agent."}`, false, "Something went wrong with the AI agent."},
		{"validation detail list", http.StatusUnprocessableEntity, `{"detail":[{"msg":"field required"},{"msg":"too long"}]}`, false, "field required; too long"},
		{"plain text error", http.StatusBadGateway, `bad gateway`, false, "bad gateway"},
		{"malformed json", http.StatusOK, `{not json`, true, ""},
		{"missing answer", http.StatusOK, `{"status":"success"}`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeAgent{chatStatus: tt.status, chatResponse: tt.response}
			srv := newFake(t, f)

			_, err := NewClient(Config{BaseURL: srv.URL}).Ask(context.Background(), "q", "s")
			require.Error(t, err)

			if tt.malformed {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.detail, apiErr.Detail)
		})
	}
}

func TestAskNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{BaseURL: url}).Ask(context.Background(), "q", "s")
	assert.Error(t, err)
}

func TestAskTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Ask(context.Background(), "q", "s")
	assert.Error(t, err)
}

func TestExamples(t *testing.T) {
	srv := newFake(t, &fakeAgent{})

	examples, err := NewClient(Config{BaseURL: srv.URL}).Examples(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Top 3 items?", "Peak shopping times?"}, examples)
}

func TestSendFeedback(t *testing.T) {
	f := &fakeAgent{}
	srv := newFake(t, f)
	c := NewClient(Config{BaseURL: srv.URL})

	fb := Feedback{Question: "q", Answer: "a", Rating: 5, Comment: "great"}
	require.NoError(t, c.SendFeedback(context.Background(), fb))
	require.Len(t, f.feedbackBodies, 1)
	assert.Equal(t, fb, f.feedbackBodies[0])

	for _, rating := range []int{0, 6, -1} {
		err := c.SendFeedback(context.Background(), Feedback{Rating: rating})
		assert.ErrorIs(t, err, ErrInvalidRating)
	}
	assert.Len(t, f.feedbackBodies, 1, "invalid ratings never reach the backend")
}
