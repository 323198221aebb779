package records

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hatcher/pilot/pkg/httpx"
)

// RemoteBackend proxies the Backend contract through the agent service's
// HTTP API. The service scopes listings by working directory, so the
// backend carries no project state of its own.
type RemoteBackend struct {
	client *httpx.Client
	token  string
}

func NewRemoteBackend(client *httpx.Client, token string) *RemoteBackend {
	return &RemoteBackend{client: client, token: token}
}

func (b *RemoteBackend) auth() httpx.Option {
	return httpx.WithBearer(b.token)
}

func (b *RemoteBackend) Sessions(ctx context.Context, directory string) ([]Session, error) {
	var sessions []Session
	err := b.client.DoJSON(ctx, &sessions,
		httpx.WithMethodGet(),
		httpx.WithPath("/session"),
		httpx.WithQuery("directory", directory),
		b.auth(),
	)
	if errors.Is(err, httpx.ErrNotFound) {
		return nil, nil
	}
	return sessions, err
}

func (b *RemoteBackend) Session(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := b.client.DoJSON(ctx, &s,
		httpx.WithMethodGet(),
		httpx.WithPath("/session/"+id),
		b.auth(),
	)
	if errors.Is(err, httpx.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// messageWithParts is the service's wire shape for message listings.
type messageWithParts struct {
	Info  Message `json:"info"`
	Parts []Part  `json:"parts"`
}

func (b *RemoteBackend) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	var wire []messageWithParts
	err := b.client.DoJSON(ctx, &wire,
		httpx.WithMethodGet(),
		httpx.WithPath("/session/"+sessionID+"/message"),
		b.auth(),
	)
	if errors.Is(err, httpx.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, len(wire))
	for i, w := range wire {
		msgs[i] = w.Info
		msgs[i].Parts = w.Parts
	}
	SortMessages(msgs)
	return msgs, nil
}

func (b *RemoteBackend) Todos(ctx context.Context, sessionID string) ([]TodoItem, error) {
	var todos []TodoItem
	err := b.client.DoJSON(ctx, &todos,
		httpx.WithMethodGet(),
		httpx.WithPath("/session/"+sessionID+"/todo"),
		b.auth(),
	)
	if errors.Is(err, httpx.ErrNotFound) {
		return nil, nil
	}
	return todos, err
}

func (b *RemoteBackend) CreateMessage(ctx context.Context, m Message) error {
	return b.client.DoJSON(ctx, nil,
		httpx.WithMethodPost(),
		httpx.WithPath("/session/"+m.SessionID+"/record/message"),
		httpx.WithBody(m),
		b.auth(),
	)
}

func (b *RemoteBackend) CreatePart(ctx context.Context, p Part) error {
	return b.client.DoJSON(ctx, nil,
		httpx.WithMethodPost(),
		httpx.WithPath("/session/"+p.SessionID+"/record/part"),
		httpx.WithBody(p),
		b.auth(),
	)
}

func (b *RemoteBackend) TouchSession(ctx context.Context, id string) error {
	body := map[string]int64{"updated": time.Now().UnixMilli()}
	err := b.client.DoJSON(ctx, nil,
		httpx.WithMethod(httpx.PATCH),
		httpx.WithPath("/session/"+id),
		httpx.WithBody(body),
		b.auth(),
	)
	if errors.Is(err, httpx.ErrNotFound) {
		return nil
	}
	return err
}

func (b *RemoteBackend) DeleteSession(ctx context.Context, id string) (int64, error) {
	var out struct {
		BytesFreed int64 `json:"bytesFreed"`
	}
	err := b.client.DoJSON(ctx, &out,
		httpx.WithMethodDelete(),
		httpx.WithPath("/session/"+id),
		b.auth(),
	)
	if errors.Is(err, httpx.ErrNotFound) {
		return 0, nil
	}
	return out.BytesFreed, err
}
