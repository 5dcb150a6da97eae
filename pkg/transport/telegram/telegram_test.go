package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"relaybot/pkg/delivery"
	"relaybot/pkg/imagegen"
	"relaybot/pkg/pager"
	"relaybot/pkg/relay"
	"relaybot/pkg/render"
)

type apiCall struct {
	method string
	params map[string]any
}

// fakeAPI is a minimal Bot API server. reply may override the response per method.
type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall
	reply func(method string) (status int, body string, ok bool)
	srv   *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/file/") {
		_, _ = w.Write([]byte("file body"))
		return
	}
	method := path.Base(r.URL.Path)
	params := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&params)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, params: params})
	reply := f.reply
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if reply != nil {
		if status, body, ok := reply(method); ok {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
			return
		}
	}
	switch method {
	case "sendMessage", "editMessageText":
		_, _ = w.Write([]byte(`{"ok": true, "result": {"message_id": 77, "date": 0, "chat": {"id": 7, "type": "private"}, "text": "x"}}`))
	case "sendPhoto":
		_, _ = w.Write([]byte(`{"ok": true, "result": {"message_id": 78, "date": 0, "chat": {"id": 7, "type": "private"}, "photo": [{"file_id": "P1", "file_unique_id": "U1", "width": 1, "height": 1}]}}`))
	case "getFile":
		_, _ = w.Write([]byte(`{"ok": true, "result": {"file_id": "F1", "file_size": 9, "file_path": "docs/notes.txt"}}`))
	default:
		_, _ = w.Write([]byte(`{"ok": true, "result": true}`))
	}
}

func (f *fakeAPI) callsTo(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func newTestBot(t *testing.T, api *fakeAPI) *tele.Bot {
	t.Helper()
	bot, err := NewBot("123:token", api.srv.URL, time.Second, true)
	require.NoError(t, err)
	return bot
}

func TestSendWithControls(t *testing.T) {
	api := newFakeAPI(t)
	tr := NewTransport(newTestBot(t, api))

	id, err := tr.Send(context.Background(), 7, delivery.Message{
		Payload: render.Payload{Text: "```go\nx\n```", Format: render.FormatMarkdown},
		Nav:     &delivery.Nav{Cursor: 1, Total: 3},
	})

	require.NoError(t, err)
	assert.Equal(t, pager.MessageID{ChatID: 7, MessageID: 77}, id)

	calls := api.callsTo("sendMessage")
	require.Len(t, calls, 1)
	p := calls[0].params
	assert.Equal(t, "```go\nx\n```", p["text"])
	assert.Equal(t, "Markdown", p["parse_mode"])
	markup, _ := p["reply_markup"].(string)
	assert.Contains(t, markup, "2 / 3")
	assert.Contains(t, markup, UniquePrev)
	assert.Contains(t, markup, UniqueNext)
}

func TestSendPlainHasNoParseMode(t *testing.T) {
	api := newFakeAPI(t)
	tr := NewTransport(newTestBot(t, api))

	_, err := tr.Send(context.Background(), 7, delivery.Message{Payload: render.Payload{Text: "<b>", Format: render.FormatPlain}})

	require.NoError(t, err)
	p := api.callsTo("sendMessage")[0].params
	assert.Empty(t, p["parse_mode"])
	assert.Empty(t, p["reply_markup"])
}

func TestEditTargetsStoredMessage(t *testing.T) {
	api := newFakeAPI(t)
	tr := NewTransport(newTestBot(t, api))

	err := tr.Edit(context.Background(), pager.MessageID{ChatID: 7, MessageID: 42}, delivery.Message{
		Payload: render.Payload{Text: "page two", Format: render.FormatHTML},
		Nav:     &delivery.Nav{Cursor: 1, Total: 2},
	})

	require.NoError(t, err)
	calls := api.callsTo("editMessageText")
	require.Len(t, calls, 1)
	assert.Equal(t, "42", fmt.Sprint(calls[0].params["message_id"]))
	assert.Equal(t, "7", fmt.Sprint(calls[0].params["chat_id"]))
	assert.Equal(t, "HTML", calls[0].params["parse_mode"])
}

func TestRejectionsAreClassified(t *testing.T) {
	api := newFakeAPI(t)
	api.reply = func(method string) (int, string, bool) {
		switch method {
		case "sendMessage":
			return http.StatusBadRequest, `{"ok": false, "error_code": 400, "description": "Bad Request: can't parse entities: Can't find end of the entity starting at byte offset 3"}`, true
		case "editMessageText":
			return http.StatusBadRequest, `{"ok": false, "error_code": 400, "description": "Bad Request: message is not modified: specified new message content and reply markup are exactly the same"}`, true
		}
		return 0, "", false
	}
	tr := NewTransport(newTestBot(t, api))
	var cls Classifier

	_, err := tr.Send(context.Background(), 7, delivery.Message{Payload: render.Payload{Text: "*x", Format: render.FormatMarkdown}})
	require.Error(t, err)
	assert.True(t, cls.IsParseError(err))
	assert.False(t, cls.IsNotModified(err))

	err = tr.Edit(context.Background(), pager.MessageID{ChatID: 7, MessageID: 1}, delivery.Message{Payload: render.Payload{Text: "same"}})
	require.Error(t, err)
	assert.True(t, cls.IsNotModified(err))
	assert.False(t, cls.IsParseError(err))
}

func TestClassifierIgnoresOtherErrors(t *testing.T) {
	var cls Classifier
	assert.False(t, cls.IsParseError(nil))
	assert.False(t, cls.IsNotModified(nil))
	assert.False(t, cls.IsParseError(errors.New("telegram: Forbidden: bot was blocked by the user (403)")))
}

func TestNotifyImageAndTyping(t *testing.T) {
	api := newFakeAPI(t)
	tr := NewTransport(newTestBot(t, api))
	ctx := context.Background()

	require.NoError(t, tr.Notify(ctx, 7, "hello"))
	require.NoError(t, tr.SendImage(ctx, 7, imagegen.Image{URL: "https://img.example/a.png", RevisedPrompt: "a cat"}))
	tr.Typing(ctx, 7)

	assert.Len(t, api.callsTo("sendMessage"), 1)
	photos := api.callsTo("sendPhoto")
	require.Len(t, photos, 1)
	assert.Equal(t, "https://img.example/a.png", photos[0].params["photo"])
	assert.Equal(t, "a cat", photos[0].params["caption"])
	assert.Len(t, api.callsTo("sendChatAction"), 1)
}

func TestTruncateCaption(t *testing.T) {
	assert.Equal(t, "short", truncateCaption("short"))
	long := truncateCaption(strings.Repeat("я", 2000))
	assert.Equal(t, captionLimit, len([]rune(long)))
}

type recordingHandler struct {
	mu   sync.Mutex
	reqs []relay.Request
}

func (h *recordingHandler) Handle(_ context.Context, req relay.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reqs = append(h.reqs, req)
}

type recordingNavigator struct {
	ack    pager.Ack
	id     pager.MessageID
	action pager.Action
}

func (n *recordingNavigator) Handle(_ context.Context, id pager.MessageID, action pager.Action) pager.Ack {
	n.id, n.action = id, action
	return n.ack
}

func TestRouterText(t *testing.T) {
	api := newFakeAPI(t)
	bot := newTestBot(t, api)
	h := &recordingHandler{}
	r := NewRouter(bot, h, &recordingNavigator{})

	c := bot.NewContext(tele.Update{Message: &tele.Message{ID: 1, Chat: &tele.Chat{ID: 7}, Text: "/code hi"}})
	require.NoError(t, r.onText(c))

	require.Len(t, h.reqs, 1)
	assert.Equal(t, relay.Request{ChatID: 7, Text: "/code hi"}, h.reqs[0])
}

func TestRouterDocument(t *testing.T) {
	api := newFakeAPI(t)
	bot := newTestBot(t, api)
	h := &recordingHandler{}
	r := NewRouter(bot, h, &recordingNavigator{})

	c := bot.NewContext(tele.Update{Message: &tele.Message{
		ID:      1,
		Chat:    &tele.Chat{ID: 7},
		Caption: "summarize",
		Document: &tele.Document{
			File:     tele.File{FileID: "F1", FileSize: 9},
			FileName: "notes.txt",
			MIME:     "text/plain",
		},
	}})
	require.NoError(t, r.onDocument(c))

	require.Len(t, h.reqs, 1)
	doc := h.reqs[0].Document
	require.NotNil(t, doc)
	assert.Equal(t, "notes.txt", doc.Name)
	assert.Equal(t, "text/plain", doc.MIME)
	assert.Equal(t, int64(9), doc.Size)
	assert.Equal(t, "summarize", doc.Caption)

	rc, err := doc.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "file body", string(body))
}

func TestRouterNavigationAlwaysAnswers(t *testing.T) {
	api := newFakeAPI(t)
	bot := newTestBot(t, api)
	nav := &recordingNavigator{ack: pager.Ack{Text: pager.NoticeExpired}}
	r := NewRouter(bot, &recordingHandler{}, nav)

	c := bot.NewContext(tele.Update{Callback: &tele.Callback{
		ID:      "cb1",
		Message: &tele.Message{ID: 42, Chat: &tele.Chat{ID: 7}},
	}})
	require.NoError(t, r.onNavigate(pager.ActionNext)(c))

	assert.Equal(t, pager.MessageID{ChatID: 7, MessageID: 42}, nav.id)
	assert.Equal(t, pager.ActionNext, nav.action)
	answers := api.callsTo("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Equal(t, pager.NoticeExpired, answers[0].params["text"])

	orphan := bot.NewContext(tele.Update{Callback: &tele.Callback{ID: "cb2"}})
	require.NoError(t, r.onNavigate(pager.ActionPrev)(orphan))
	assert.Len(t, api.callsTo("answerCallbackQuery"), 2, "callbacks without a message are still answered")
}
