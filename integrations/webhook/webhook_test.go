package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hanziquest/core"
)

func TestSink_OnEventPostsToEndpoints(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()
	}))
	defer srv.Close()

	sink := New([]string{srv.URL, srv.URL})
	sink.OnEvent(context.Background(), core.NewLevelUp("u1", 2, 100, time.Now()))

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestSink_SignsBody(t *testing.T) {
	type delivery struct {
		body []byte
		sig  string
	}
	deliveries := make(chan delivery, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		deliveries <- delivery{body: body, sig: r.Header.Get(SignatureHeader)}
	}))
	defer srv.Close()

	sink := New([]string{srv.URL}, WithSecret("s3cret"))
	require.NoError(t, sink.Deliver(context.Background(), core.NewMissionClaimed("u1", "daily_quiz_3", 50, time.Now())))

	d := <-deliveries
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(d.body)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), d.sig)
	var got core.Event
	require.NoError(t, json.Unmarshal(d.body, &got))
	assert.Equal(t, "daily_quiz_3", got.Mission)
}

func TestSink_ReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := New([]string{srv.URL, "http://127.0.0.1:0/unreachable"}, WithTimeout(time.Second))
	err := sink.Deliver(context.Background(), core.NewLevelUp("u1", 2, 100, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}

type fakeSource map[core.EventType]func(context.Context, core.Event)

func (f fakeSource) Subscribe(typ core.EventType, fn func(context.Context, core.Event)) func() {
	f[typ] = fn
	return func() { delete(f, typ) }
}

func TestSink_FollowSubscribesConfiguredEvents(t *testing.T) {
	src := fakeSource{}
	stop := New(nil, WithEvents(core.EventLevelUp)).Follow(src)
	assert.Len(t, src, 1)
	assert.Contains(t, src, core.EventLevelUp)
	stop()
	assert.Empty(t, src)

	New(nil).Follow(src)
	assert.Len(t, src, len(DefaultEvents))
}
