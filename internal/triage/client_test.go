package triage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/daviddao/mailtriage/internal/llm"
	"github.com/daviddao/mailtriage/internal/types"
)

type reply struct {
	text string
	err  error
}

// fakeGateway returns scripted replies and records every request.
type fakeGateway struct {
	replies []reply
	calls   [][]llm.Message
	temps   []float64
	models  []string
}

func (f *fakeGateway) Chat(_ context.Context, model string, messages []llm.Message, temperature float64) (string, error) {
	f.calls = append(f.calls, messages)
	f.temps = append(f.temps, temperature)
	f.models = append(f.models, model)
	r := f.replies[min(len(f.calls), len(f.replies))-1]
	return r.text, r.err
}

const validReply = `{"category":"Finance","priority":"High","action":"Label","label":"AI/Finance","star":false,"archive":false,"reason":"Invoice."}`

func newTestClient(t *testing.T, gw llm.Gateway, hooks Hooks) *Client {
	return NewClient(gw, DefaultOptions("llama3.1", "AI/"), zaptest.NewLogger(t), hooks)
}

func longEmail() types.Email {
	return types.Email{ID: "m1", From: "a@b.c", Subject: "s", Body: strings.Repeat("x", 2000)}
}

func bodyOf(msgs []llm.Message) string {
	user := msgs[1].Content
	start := strings.Index(user, "BODY: ") + len("BODY: ")
	end := strings.Index(user[start:], "\n")
	return user[start : start+end]
}

func TestTriageSuccess(t *testing.T) {
	gw := &fakeGateway{replies: []reply{{text: "```json\n" + validReply + "\n```"}}}
	c := newTestClient(t, gw, Hooks{})

	d, err := c.Triage(context.Background(), longEmail())
	require.NoError(t, err)
	assert.Equal(t, types.CategoryFinance, d.Category)
	assert.Equal(t, "AI/Finance", d.Label)
	require.Len(t, gw.calls, 1)
	assert.Equal(t, []float64{0.2}, gw.temps)
	assert.Equal(t, []string{"llama3.1"}, gw.models)
}

func TestTriageExhaustsAfterMalformedReplies(t *testing.T) {
	gw := &fakeGateway{replies: []reply{{text: "not json"}, {text: "still not json"}, {text: "{broken"}}}
	var completes []string
	c := newTestClient(t, gw, Hooks{
		OnComplete: func(status string, attempts int) {
			completes = append(completes, status)
			assert.Equal(t, 3, attempts)
		},
	})

	email := longEmail()
	_, err := c.Triage(context.Background(), email)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTriageFailed)
	assert.ErrorIs(t, err, ErrParse, "last cause is preserved")

	var fe *FailedError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 3, fe.Attempts)

	require.Len(t, gw.calls, 3)
	assert.Equal(t, 2000, utf8.RuneCountInString(bodyOf(gw.calls[0])))
	assert.Equal(t, 1200, utf8.RuneCountInString(bodyOf(gw.calls[1])))
	assert.Equal(t, 1200, utf8.RuneCountInString(bodyOf(gw.calls[2])))

	assert.Equal(t, 2000, len(email.Body), "caller's email is untouched")
	assert.Equal(t, []string{types.StatusFailed}, completes)
}

func TestTriageRecoversAfterValidationError(t *testing.T) {
	gw := &fakeGateway{replies: []reply{
		{text: `{"category":"Bills","priority":"High","action":"Label","reason":"r"}`},
		{text: validReply},
	}}
	var outcomes []string
	c := newTestClient(t, gw, Hooks{
		OnAttempt: func(outcome string, _ float64) { outcomes = append(outcomes, outcome) },
	})

	d, err := c.Triage(context.Background(), longEmail())
	require.NoError(t, err)
	assert.Equal(t, types.PriorityHigh, d.Priority)
	assert.Equal(t, []string{OutcomeValidationError, OutcomeOK}, outcomes)
	assert.Equal(t, 1200, utf8.RuneCountInString(bodyOf(gw.calls[1])))
}

func TestTriageGatewayErrorKeepsBody(t *testing.T) {
	gw := &fakeGateway{replies: []reply{
		{err: errors.New("connection refused")},
		{text: validReply},
	}}
	c := newTestClient(t, gw, Hooks{})

	_, err := c.Triage(context.Background(), longEmail())
	require.NoError(t, err)
	require.Len(t, gw.calls, 2)
	assert.Equal(t, 2000, utf8.RuneCountInString(bodyOf(gw.calls[1])))
}

func TestTriageGatewayExhaustion(t *testing.T) {
	gw := &fakeGateway{replies: []reply{{err: errors.New("connection refused")}}}
	c := newTestClient(t, gw, Hooks{})

	_, err := c.Triage(context.Background(), longEmail())
	assert.ErrorIs(t, err, ErrTriageFailed)
	assert.ErrorIs(t, err, ErrGateway)
	assert.Len(t, gw.calls, 3)
}

func TestTriageMaxRetriesZero(t *testing.T) {
	gw := &fakeGateway{replies: []reply{{text: "nope"}}}
	opts := DefaultOptions("m", "AI/")
	opts.MaxRetries = 0
	c := NewClient(gw, opts, nil, Hooks{})

	_, err := c.Triage(context.Background(), longEmail())
	assert.ErrorIs(t, err, ErrTriageFailed)
	assert.Len(t, gw.calls, 1)
}

type cancelingGateway struct {
	cancel context.CancelFunc
	calls  int
}

func (g *cancelingGateway) Chat(ctx context.Context, _ string, _ []llm.Message, _ float64) (string, error) {
	g.calls++
	g.cancel()
	return "", ctx.Err()
}

func TestTriageStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gw := &cancelingGateway{cancel: cancel}
	c := newTestClient(t, gw, Hooks{})

	_, err := c.Triage(ctx, longEmail())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTriageFailed)
	assert.Equal(t, 1, gw.calls)
}

func TestShrink(t *testing.T) {
	assert.Equal(t, "abc", shrink("abc", 5))
	assert.Equal(t, "ab", shrink("abc", 2))
	assert.Equal(t, "äö", shrink("äöü", 2))
}
