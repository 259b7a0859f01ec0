package runner

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	gm "google.golang.org/api/gmail/v1"

	"github.com/daviddao/mailtriage/internal/audit"
	"github.com/daviddao/mailtriage/internal/llm"
	"github.com/daviddao/mailtriage/internal/policy"
	"github.com/daviddao/mailtriage/internal/triage"
	"github.com/daviddao/mailtriage/internal/types"
)

type fakeSource struct {
	msgs    map[string]*gm.Message
	order   []string
	query   string
	listErr error
}

func (f *fakeSource) add(id, from, subject, body string) {
	if f.msgs == nil {
		f.msgs = map[string]*gm.Message{}
	}
	f.msgs[id] = &gm.Message{
		Id:       id,
		ThreadId: "t-" + id,
		Payload: &gm.MessagePart{
			MimeType: "text/plain",
			Headers: []*gm.MessagePartHeader{
				{Name: "From", Value: from},
				{Name: "Subject", Value: subject},
			},
			Body: &gm.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(body))},
		},
	}
	f.order = append(f.order, id)
}

func (f *fakeSource) ListMessageIDs(_ context.Context, query string, maxResults int64) ([]string, error) {
	f.query = query
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.order[:min(int64(len(f.order)), maxResults)], nil
}

func (f *fakeSource) GetMessage(_ context.Context, id string) (*gm.Message, error) {
	m, ok := f.msgs[id]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return m, nil
}

type fakeExecutor struct {
	calls    []string
	labels   map[string]string
	starErr  error
	ensureIn []string
}

func (f *fakeExecutor) EnsureLabel(_ context.Context, name string) (string, error) {
	f.ensureIn = append(f.ensureIn, name)
	return "id:" + name, nil
}

func (f *fakeExecutor) AddLabels(_ context.Context, msgID string, ids []string) error {
	f.calls = append(f.calls, "label "+msgID+" "+strings.Join(ids, ","))
	return nil
}

func (f *fakeExecutor) Star(_ context.Context, msgID string) error {
	f.calls = append(f.calls, "star "+msgID)
	return f.starErr
}

func (f *fakeExecutor) Archive(_ context.Context, msgID string) error {
	f.calls = append(f.calls, "archive "+msgID)
	return nil
}

type memSink struct{ recs []audit.Record }

func (m *memSink) Append(_ context.Context, rec audit.Record) error {
	m.recs = append(m.recs, rec)
	return nil
}
func (m *memSink) Close() error { return nil }

// bySubject answers with a fixed reply per subject line.
type bySubject map[string]string

func (b bySubject) Chat(_ context.Context, _ string, msgs []llm.Message, _ float64) (string, error) {
	for subject, reply := range b {
		if strings.Contains(msgs[1].Content, "SUBJECT: "+subject+"\n") {
			return reply, nil
		}
	}
	return "no idea", nil
}

type recorder map[string]int

func (r recorder) RecordAction(action string, err error) {
	if err != nil {
		action += "_error"
	}
	r[action]++
}

func newRunner(t *testing.T, src Source, exec Executor, gw llm.Gateway, sink audit.Sink, cfg policy.Config, opts Options, out *strings.Builder) *Runner {
	t.Helper()
	logger := zaptest.NewLogger(t)
	client := triage.NewClient(gw, triage.DefaultOptions("llama3.1", cfg.LabelPrefix), logger, triage.Hooks{})
	var rec recorder = map[string]int{}
	r, err := New(Deps{
		Source:   src,
		Executor: exec,
		Triager:  client,
		Policy:   policy.NewEngine(cfg),
		Sink:     sink,
		Recorder: rec,
		Out:      out,
		Logger:   logger,
	}, opts)
	require.NoError(t, err)
	return r
}

func TestRunDryRun(t *testing.T) {
	src := &fakeSource{}
	src.add("m1", "The CEO <ceo@corp.com>", "Lunch?", "Are you free?")
	src.add("m2", "news@letters.com", "Weekly", "Top stories")
	src.add("m3", "x@y.z", "Garbled", "???")

	gw := bySubject{
		"Lunch?": `{"category":"Personal","priority":"Low","action":"None","star":false,"archive":false,"reason":"Casual invite."}`,
		"Weekly": `{"category":"Newsletter","priority":"Low","action":"None","star":"false","archive":"false","reason":"Digest."}`,
	}
	sink := &memSink{}
	exec := &fakeExecutor{}
	var out strings.Builder
	cfg := policy.NewConfig("AI/", []string{"ceo@corp.com"}, true, false)

	r := newRunner(t, src, exec, gw, sink, cfg, Options{Mode: types.ModeDryRun, Model: "llama3.1", Fetch: 20, SinceDays: 7, MaxBodyChars: 2000}, &out)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "newer_than:7d", src.query)
	assert.Equal(t, 3, sum.Fetched)
	assert.Equal(t, 2, sum.Triaged)
	assert.Equal(t, 1, sum.Failed)
	assert.NotEmpty(t, sum.RunID)
	assert.Empty(t, exec.calls, "dry run never touches the mailbox")

	require.Len(t, sink.recs, 3)
	vip := sink.recs[0].Decision
	require.NotNil(t, vip)
	assert.Equal(t, types.PriorityHigh, vip.Priority)
	assert.True(t, vip.Star)
	assert.Equal(t, types.ActionStar, vip.Action)
	assert.Equal(t, "VIP sender (ceo@corp.com). Casual invite.", vip.Reason)

	news := sink.recs[1].Decision
	require.NotNil(t, news)
	assert.Equal(t, "AI/Newsletter", news.Label)
	assert.True(t, news.Archive)
	assert.Equal(t, types.ActionLabel, news.Action)

	failed := sink.recs[2]
	assert.Equal(t, types.StatusFailed, failed.Status)
	assert.Nil(t, failed.Decision)
	assert.Contains(t, failed.Error, "triage failed after 3 attempts")

	for _, rec := range sink.recs {
		assert.Equal(t, sum.RunID, rec.RunID)
		assert.Equal(t, types.ModeDryRun, rec.Mode)
		assert.Equal(t, "llama3.1", rec.Model)
	}

	assert.Contains(t, out.String(), "[DRY-RUN]")
	assert.NotContains(t, out.String(), "[APPLY]")
}

func TestRunApplyExecutesActions(t *testing.T) {
	src := &fakeSource{}
	src.add("m1", "billing@acme.com", "Invoice", "Pay now")
	src.add("m2", "spam@spam.biz", "WIN", "$$$")

	gw := bySubject{
		"Invoice": `{"category":"Finance","priority":"High","action":"None","reason":"Invoice."}`,
		"WIN":     `{"category":"Spam","priority":"Low","action":"None","reason":"Spam."}`,
	}
	exec := &fakeExecutor{starErr: errors.New("403")}
	sink := &memSink{}
	var out strings.Builder
	cfg := policy.NewConfig("AI/", nil, false, true)

	r := newRunner(t, src, exec, gw, sink, cfg, Options{Mode: types.ModeApply, Model: "llama3.1", Fetch: 10, SinceDays: 1}, &out)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"label m1 id:AI/Finance",
		"star m1",
		"archive m2",
	}, exec.calls)
	assert.Equal(t, []string{"AI/Finance"}, exec.ensureIn)

	assert.Equal(t, 1, sum.Labeled)
	assert.Equal(t, 0, sum.Starred, "failed star is not counted")
	assert.Equal(t, 1, sum.Archived)
	assert.Equal(t, map[string]int{"label": 1, "star_error": 1, "archive": 1}, map[string]int(r.Recorder.(recorder)))

	assert.Contains(t, out.String(), "[APPLY]")
	for _, rec := range sink.recs {
		assert.Equal(t, types.StatusOK, rec.Status, "action failures do not fail the email")
	}
}

func TestRunFailFast(t *testing.T) {
	src := &fakeSource{}
	src.add("m1", "a@b.c", "Bad", "x")
	src.add("m2", "a@b.c", "Good", "y")

	gw := bySubject{"Good": `{"category":"Other","priority":"Low","action":"None","reason":"r"}`}
	sink := &memSink{}
	var out strings.Builder

	r := newRunner(t, src, nil, gw, sink, policy.NewConfig("AI/", nil, false, false),
		Options{Mode: types.ModeDryRun, Fetch: 10, FailFast: true}, &out)
	sum, err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, triage.ErrTriageFailed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 0, sum.Triaged)
	require.Len(t, sink.recs, 1, "the failure is audited before stopping")
}

func TestRunFetchError(t *testing.T) {
	src := &fakeSource{listErr: errors.New("401")}
	r := newRunner(t, src, nil, bySubject{}, &memSink{}, policy.NewConfig("AI/", nil, false, false),
		Options{Fetch: 5}, &strings.Builder{})
	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "fetch messages")
}

func TestRunGetMessageErrorContinues(t *testing.T) {
	src := &fakeSource{}
	src.add("m1", "a@b.c", "Ok", "x")
	src.order = append([]string{"missing"}, src.order...)

	gw := bySubject{"Ok": `{"category":"Other","priority":"Low","action":"None","reason":"r"}`}
	sink := &memSink{}
	r := newRunner(t, src, nil, gw, sink, policy.NewConfig("AI/", nil, false, false), Options{Fetch: 5}, &strings.Builder{})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Triaged)
	require.Len(t, sink.recs, 2)
	assert.Equal(t, "missing", sink.recs[0].EmailID)
	assert.Equal(t, types.StatusFailed, sink.recs[0].Status)
}

func TestRunCanceled(t *testing.T) {
	src := &fakeSource{}
	src.add("m1", "a@b.c", "Ok", "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &memSink{}
	r := newRunner(t, src, nil, bySubject{}, sink, policy.NewConfig("AI/", nil, false, false), Options{Fetch: 5}, &strings.Builder{})
	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.recs)
}

func TestNewRequiresExecutorForApply(t *testing.T) {
	_, err := New(Deps{
		Source:  &fakeSource{},
		Triager: triage.NewClient(bySubject{}, triage.DefaultOptions("m", "AI/"), nil, triage.Hooks{}),
		Policy:  policy.NewEngine(policy.NewConfig("AI/", nil, false, false)),
	}, Options{Mode: types.ModeApply})
	assert.Error(t, err)
}
