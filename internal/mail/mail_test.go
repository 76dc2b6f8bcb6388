package mail

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestRenderer_Verification(t *testing.T) {
	r := NewRenderer("https://pollworkers.example.gov/")

	msg, err := r.Verification("Ada <Lovelace>", "ada@example.com", "tok123")
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, "Verify Your Poll Worker Registration", msg.Subject)
	assert.Contains(t, msg.HTMLBody, `href="https://pollworkers.example.gov/verify/tok123"`)
	assert.Contains(t, msg.HTMLBody, "Hello Ada &lt;Lovelace&gt;,")
	assert.Contains(t, msg.HTMLBody, "expire in 48 hours")
	assert.Contains(t, msg.TextBody, "https://pollworkers.example.gov/verify/tok123")
	assert.Contains(t, msg.TextBody, "Hello Ada <Lovelace>,")
}

func TestLogSender_RedactsVerificationLink(t *testing.T) {
	msg, err := NewRenderer("https://pollworkers.example.gov").Verification("Ada", "ada@example.com", "tok123")
	require.NoError(t, err)

	var buf strings.Builder
	sender := NewLogSender(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, sender.Send(context.Background(), msg))

	out := buf.String()
	assert.NotContains(t, out, "tok123")
	assert.Contains(t, out, "https://pollworkers.example.gov/verify/[redacted]")
	assert.Contains(t, out, `"to":"ada@example.com"`)
}

func TestSMTPSender_BuildsMultipartMessage(t *testing.T) {
	s := NewSMTPSender("smtp.example.gov:587", "no-reply@example.gov", "user", "pass")
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	err := s.Send(context.Background(), Message{
		To: "ada@example.com", Subject: VerificationSubject, HTMLBody: "<p>hi</p>", TextBody: "hi",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.gov:587", gotAddr)
	assert.Equal(t, "no-reply@example.gov", gotFrom)
	assert.Equal(t, []string{"ada@example.com"}, gotTo)
	raw := string(gotMsg)
	assert.Contains(t, raw, "Subject: Verify Your Poll Worker Registration")
	assert.Contains(t, raw, "multipart/alternative; boundary=")
	assert.Contains(t, raw, "text/html; charset=UTF-8")
	assert.Contains(t, raw, "<p>hi</p>")
}

func TestSMTPSender_WrapsTransportError(t *testing.T) {
	s := NewSMTPSender("localhost:25", "no-reply@example.gov", "", "")
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := s.Send(context.Background(), Message{To: "ada@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ada@example.com")
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.records = append(p.records, rs...)
	out := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		out = append(out, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return out
}

func TestKafkaSender_PublishesJSON(t *testing.T) {
	producer := &fakeProducer{}
	s := NewKafkaSender(producer, "pollworker.verification-emails")

	require.NoError(t, s.Send(context.Background(), Message{To: "ada@example.com", Subject: "s"}))
	require.Len(t, producer.records, 1)

	rec := producer.records[0]
	assert.Equal(t, "pollworker.verification-emails", rec.Topic)
	assert.Equal(t, "ada@example.com", string(rec.Key))
	var decoded Message
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, "s", decoded.Subject)
}

func TestKafkaSender_ProduceError(t *testing.T) {
	s := NewKafkaSender(&fakeProducer{err: errors.New("broker down")}, "t")
	assert.Error(t, s.Send(context.Background(), Message{To: "ada@example.com"}))
}

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestQueue_DeliversInBackground(t *testing.T) {
	sender := &recordingSender{}
	m := NewMetrics(prometheus.NewRegistry())
	q := NewQueue(NewRenderer("http://localhost"), sender, 4, WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()

	require.NoError(t, q.SendVerification(ctx, "Ada", "ada@example.com", "tok"))
	assert.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Delivered))
	assert.True(t, strings.HasSuffix(sender.sent[0].TextBody, "disregard this email.\n"))
}

func TestQueue_FullQueueDrops(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	q := NewQueue(NewRenderer("http://localhost"), &recordingSender{}, 1, WithMetrics(m))

	require.NoError(t, q.Enqueue(Message{To: "a@example.com"}))
	assert.ErrorIs(t, q.Enqueue(Message{To: "b@example.com"}), ErrQueueFull)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Dropped))
}

func TestQueue_DrainsOnShutdownAndCountsFailures(t *testing.T) {
	sender := &recordingSender{err: errors.New("relay rejected")}
	m := NewMetrics(prometheus.NewRegistry())
	q := NewQueue(NewRenderer("http://localhost"), sender, 4,
		WithMetrics(m), WithLogger(slog.New(slog.DiscardHandler)))

	require.NoError(t, q.Enqueue(Message{To: "a@example.com"}))
	require.NoError(t, q.Enqueue(Message{To: "b@example.com"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, q.Run(ctx))

	assert.Equal(t, 2, sender.count())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Failed))
}
