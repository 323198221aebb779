package turn

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hatcher/pilot/agent/ident"
	"github.com/hatcher/pilot/agent/records"
	"github.com/hatcher/pilot/agent/stream"
	"github.com/hatcher/pilot/pkg/logs"
)

// WriteSummary appends a synthetic assistant message carrying the turn's
// closing summary. Ids come from agent/ident, so the records sort and read
// exactly like service-written ones; the part is marked synthetic so
// downstream consumers can tell it apart.
func WriteSummary(ctx context.Context, backend records.Backend, sessionID, text string, res stream.Result) error {
	if text == "" {
		return nil
	}
	now := time.Now().UnixMilli()

	msg := records.Message{
		ID:        ident.NewMessageID(),
		SessionID: sessionID,
		Role:      records.RoleAssistant,
		Time:      records.MessageTime{Created: now, Completed: now},
		ModelID:   res.Model,
		Cost:      res.Cost,
	}
	if res.Tokens.Total() > 0 {
		tokens := res.Tokens
		msg.Tokens = &tokens
	}
	if err := backend.CreateMessage(ctx, msg); err != nil {
		return errors.Wrap(err, "writeback: create summary message")
	}

	part := records.Part{
		ID:        ident.NewPartID(),
		MessageID: msg.ID,
		SessionID: sessionID,
		Payload: records.TextPart{
			Text:      text,
			Synthetic: true,
			Time:      &records.PartSpan{Start: now, End: now},
		},
	}
	if err := backend.CreatePart(ctx, part); err != nil {
		return errors.Wrap(err, "writeback: create summary part")
	}

	if err := backend.TouchSession(ctx, sessionID); err != nil {
		logs.Warnf("writeback: touch session %s: %v", sessionID, err)
	}
	return nil
}
