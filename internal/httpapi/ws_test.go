package httpapi_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-courseware/internal/progress"
	"github.com/p-n-ai/pai-courseware/internal/session"
	"github.com/p-n-ai/pai-courseware/internal/state"
)

type frame struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

func dialSession(t *testing.T, srvURL, learnerID, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srvURL, "http") + "/v1/learners/" + learnerID + "/sessions/" + sessionID + "/ws"
	c, _, err := websocket.Dial(t.Context(), url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func send(t *testing.T, c *websocket.Conn, action, answer string) frame {
	t.Helper()
	msg := map[string]any{"action": action}
	if answer != "" {
		msg["answer"] = json.RawMessage(answer)
	}
	if err := wsjson.Write(t.Context(), c, msg); err != nil {
		t.Fatalf("write %s: %v", action, err)
	}
	return receive(t, c)
}

func receive(t *testing.T, c *websocket.Conn) frame {
	t.Helper()
	var f frame
	if err := wsjson.Read(t.Context(), c, &f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func TestSessionSocket_Flow(t *testing.T) {
	srv := newServer(t, state.NewMemoryKV())
	call(t, srv, http.MethodPost, "/v1/learners/ana/courses/buddhism", "", http.StatusCreated, nil)
	var st session.Status
	call(t, srv, http.MethodPost, "/v1/learners/ana/sessions",
		`{"subject_id":"buddhism","unit_id":"bud-1","lesson_id":"bud-1-1"}`, http.StatusCreated, &st)

	c := dialSession(t, srv.URL, "ana", st.ID)

	hello := receive(t, c)
	if hello.Type != "status" {
		t.Fatalf("first frame type = %q, want status", hello.Type)
	}

	if f := send(t, c, "begin", ""); f.Type != "lesson" {
		t.Fatalf("begin reply = %+v", f)
	}
	if f := send(t, c, "practice", ""); f.Type != "status" {
		t.Fatalf("practice reply = %+v", f)
	}

	for i, a := range answers {
		f := send(t, c, "submit", a)
		if f.Type != "judgement" {
			t.Fatalf("submit %d reply = %+v", i, f)
		}
		var j session.Judgement
		if err := json.Unmarshal(f.Data, &j); err != nil {
			t.Fatal(err)
		}
		if wantCorrect := i != 3; j.Correct != wantCorrect {
			t.Errorf("answer %d correct = %v, want %v", i, j.Correct, wantCorrect)
		}
		if f := send(t, c, "advance", ""); f.Type != "status" {
			t.Fatalf("advance %d reply = %+v", i, f)
		}
	}

	f := send(t, c, "finish", "")
	if f.Type != "result" {
		t.Fatalf("finish reply = %+v", f)
	}
	var res session.Result
	if err := json.Unmarshal(f.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Score != (progress.Score{Correct: 3, Total: 4}) {
		t.Errorf("score = %+v, want 3/4", res.Score)
	}

	// Errors come back as frames and keep the socket open.
	if f := send(t, c, "finish", ""); f.Type != "error" || f.Code != "precondition_failed" {
		t.Errorf("second finish reply = %+v", f)
	}
	if f := send(t, c, "dance", ""); f.Type != "error" || f.Code != "invalid_request" {
		t.Errorf("unknown action reply = %+v", f)
	}

	c.Close(websocket.StatusNormalClosure, "")
}

func TestSessionSocket_DisconnectAbandons(t *testing.T) {
	srv := newServer(t, state.NewMemoryKV())
	call(t, srv, http.MethodPost, "/v1/learners/ana/courses/buddhism", "", http.StatusCreated, nil)
	var st session.Status
	call(t, srv, http.MethodPost, "/v1/learners/ana/sessions",
		`{"subject_id":"buddhism","unit_id":"bud-1","lesson_id":"bud-1-1"}`, http.StatusCreated, &st)

	c := dialSession(t, srv.URL, "ana", st.ID)
	receive(t, c)
	send(t, c, "begin", "")
	c.Close(websocket.StatusGoingAway, "bye")

	path := "/v1/learners/ana/sessions/" + st.ID
	deadline := time.Now().Add(5 * time.Second)
	for {
		call(t, srv, http.MethodGet, path, "", http.StatusOK, &st)
		if st.Phase == session.PhaseAbandoned {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("phase = %s after disconnect, want abandoned", st.Phase)
		}
		time.Sleep(20 * time.Millisecond)
	}

	var stats progress.Stats
	call(t, srv, http.MethodGet, "/v1/learners/ana/courses/buddhism/stats", "", http.StatusOK, &stats)
	if stats.CompletedItems != 0 {
		t.Errorf("CompletedItems = %d, want 0", stats.CompletedItems)
	}
}

func TestSessionSocket_UnknownSession(t *testing.T) {
	srv := newServer(t, state.NewMemoryKV())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/learners/ana/sessions/nope/ws"
	_, resp, err := websocket.Dial(t.Context(), url, nil)
	if err == nil {
		t.Fatal("Dial() succeeded for an unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %v, want 404", resp)
	}
}
