package turn

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hatcher/pilot/agent/pubsub"
	"github.com/hatcher/pilot/agent/stream"
	"github.com/hatcher/pilot/pkg/httpx"
	"github.com/hatcher/pilot/pkg/logs"
	"github.com/hatcher/pilot/pkg/safego"
)

// Attachment references a file already staged by the host; download and
// validation happen before this core is invoked.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime"`
	URL      string `json:"url"`
}

// Subscription is one attempt's view of the event feed. Close is idempotent
// and must be called: dropping the channel alone does not close the
// upstream source.
type Subscription interface {
	Events() <-chan stream.ProgressEvent
	Close()
}

// Service is the remote agent service as this core sees it. The production
// implementation is RemoteService; tests substitute fakes.
type Service interface {
	StatusSource
	CreateSession(ctx context.Context, directory string) (string, error)
	Prompt(ctx context.Context, sessionID, text string, attachments []Attachment) error
	Events(ctx context.Context, sessionID string) (Subscription, error)
	Close() error
}

// RemoteService drives turns over the service HTTP API. One background
// reader consumes the service's event feed and fans frames out through a
// broker, so concurrent subscriptions (and reconnecting attempts) share a
// single upstream connection.
type RemoteService struct {
	client *httpx.Client
	token  string

	broker *pubsub.Broker[stream.ProgressEvent]

	startOnce    sync.Once
	closeOnce    sync.Once
	readerCtx    context.Context
	readerCancel context.CancelFunc
}

func NewRemoteService(client *httpx.Client, token string) *RemoteService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RemoteService{
		client:       client,
		token:        token,
		broker:       pubsub.NewBroker[stream.ProgressEvent](),
		readerCtx:    ctx,
		readerCancel: cancel,
	}
}

func (s *RemoteService) CreateSession(ctx context.Context, directory string) (string, error) {
	var session struct {
		ID string `json:"id"`
	}
	err := s.client.DoJSON(ctx, &session,
		httpx.WithMethodPost(),
		httpx.WithPath("/session"),
		httpx.WithBody(map[string]string{"directory": directory}),
		httpx.WithBearer(s.token),
	)
	return session.ID, err
}

func (s *RemoteService) Prompt(ctx context.Context, sessionID, text string, attachments []Attachment) error {
	parts := []map[string]any{{"type": "text", "text": text}}
	for _, a := range attachments {
		parts = append(parts, map[string]any{
			"type":     "file",
			"filename": a.Filename,
			"mime":     a.MimeType,
			"url":      a.URL,
		})
	}
	return s.client.DoJSON(ctx, nil,
		httpx.WithMethodPost(),
		httpx.WithPath("/session/"+sessionID+"/prompt"),
		httpx.WithBody(map[string]any{"parts": parts}),
		httpx.WithBearer(s.token),
	)
}

func (s *RemoteService) Status(ctx context.Context, sessionID string) (Status, error) {
	var raw json.RawMessage
	err := s.client.DoJSON(ctx, &raw,
		httpx.WithMethodGet(),
		httpx.WithPath("/session/"+sessionID+"/status"),
		httpx.WithBearer(s.token),
	)
	if err != nil {
		return nil, err
	}
	return DecodeStatus(raw)
}

// Events subscribes to the shared event feed. The processor filters by
// session, so the subscription deliberately carries every session's events.
func (s *RemoteService) Events(ctx context.Context, sessionID string) (Subscription, error) {
	s.startOnce.Do(func() {
		safego.Go(func() { s.readLoop() })
	})

	subCtx, cancel := context.WithCancel(ctx)
	raw := s.broker.Subscribe(subCtx)
	out := make(chan stream.ProgressEvent, 64)
	safego.Go(func() {
		defer close(out)
		for ev := range raw {
			select {
			case out <- ev.Payload:
			default:
				// Subscriber stopped draining (attempt torn down); keep the
				// same drop-on-full semantics as the broker.
			}
		}
	})
	return &remoteSubscription{events: out, cancel: cancel}, nil
}

// readLoop keeps one streaming connection open for the service lifetime,
// reconnecting with a flat backoff until Close.
func (s *RemoteService) readLoop() {
	for s.readerCtx.Err() == nil {
		body, err := s.client.Stream(s.readerCtx,
			httpx.WithMethodGet(),
			httpx.WithPath("/event"),
			httpx.WithBearer(s.token),
		)
		if err != nil {
			logs.Warnf("turn: event feed connect failed: %v", err)
		} else {
			s.consume(body)
			body.Close()
		}
		select {
		case <-s.readerCtx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (s *RemoteService) consume(body io.Reader) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if s.readerCtx.Err() != nil {
			return
		}
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		ev, err := stream.DecodeEvent([]byte(data))
		if err != nil {
			logs.Warnf("turn: dropping malformed event: %v", err)
			continue
		}
		if ev == nil {
			continue
		}
		s.broker.Publish(pubsub.UpdatedEvent, ev)
	}
	if err := scanner.Err(); err != nil && s.readerCtx.Err() == nil {
		logs.Warnf("turn: event feed read error: %v", err)
	}
}

// Close tears the service down. Idempotent.
func (s *RemoteService) Close() error {
	s.closeOnce.Do(func() {
		s.readerCancel()
		s.broker.Shutdown()
	})
	return nil
}

type remoteSubscription struct {
	events <-chan stream.ProgressEvent
	cancel context.CancelFunc
	once   sync.Once
}

func (s *remoteSubscription) Events() <-chan stream.ProgressEvent {
	return s.events
}

func (s *remoteSubscription) Close() {
	s.once.Do(s.cancel)
}
