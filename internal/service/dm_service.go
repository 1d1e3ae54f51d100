package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillchat/quill/internal/audit"
	"github.com/quillchat/quill/internal/domain"
	"github.com/quillchat/quill/internal/hub"
	"github.com/quillchat/quill/internal/log"
	"github.com/quillchat/quill/internal/presence"
	"github.com/quillchat/quill/internal/repository"
	"github.com/quillchat/quill/internal/storage"
)

type dmService struct {
	registry *hub.Registry
	presence *presence.Broadcaster
	messages repository.MessageRepository
	files    storage.Storage

	// syncWrites couples attachment persistence to the send: when set, a
	// failed blob write fails the whole operation instead of proceeding
	// with the filename reference.
	syncWrites bool
}

// NewDMService creates the message router.
func NewDMService(
	registry *hub.Registry,
	broadcaster *presence.Broadcaster,
	messages repository.MessageRepository,
	files storage.Storage,
	syncWrites bool,
) DMService {
	return &dmService{
		registry:   registry,
		presence:   broadcaster,
		messages:   messages,
		files:      files,
		syncWrites: syncWrites,
	}
}

// HandleStatusUpdate relays a client-reported status change to every live
// connection. The status is advisory and never persisted.
func (s *dmService) HandleStatusUpdate(ctx context.Context, c *hub.Client, update domain.StatusUpdate) {
	s.presence.BroadcastStatus(update.UserID, update.Status)
}

// HandleDirectMessage validates, persists, and fans out one direct message.
// Persistence is the durability point; live delivery on top of it is fire
// and forget, and an offline recipient simply receives nothing.
func (s *dmService) HandleDirectMessage(ctx context.Context, c *hub.Client, env domain.Envelope) error {
	if !c.Authenticated() {
		return ErrUnauthenticated
	}
	if env.Recipient == "" || (env.Text == "" && env.File == nil) {
		return ErrInvalidMessage
	}

	filename := ""
	if env.File != nil {
		data, err := decodeFilePayload(env.File.Data)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidMessage, err)
		}

		filename = attachmentName(env.File.Name)
		if err := s.storeAttachment(ctx, filename, data); err != nil {
			return err
		}
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		Sender:    c.UserID,
		Recipient: env.Recipient,
		Text:      env.Text,
		File:      filename,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, c.UserID).Str(log.FieldRecipient, env.Recipient).Msg("failed to persist message")
		return err
	}

	frame := &domain.MessageFrame{
		Text:      msg.Text,
		Sender:    msg.Sender,
		Recipient: msg.Recipient,
		File:      msg.File,
		ID:        msg.ID,
	}

	// Live delivery to every session of the recipient. Failures are
	// isolated per connection and never surfaced to the sender.
	for _, peer := range s.registry.Route(env.Recipient) {
		if err := peer.SendFrame(frame); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldConnID, peer.ID).Str(log.FieldMessageID, msg.ID).Msg("live delivery failed")
		}
	}

	audit.LogWithDetail(ctx, audit.ActionSendMessage, c.UserID, env.Recipient, "message sent")
	return nil
}

// storeAttachment writes attachment bytes to the blob store. Default is
// fire and forget: the message proceeds with the filename reference even if
// the write later fails. With syncWrites the write failure aborts the send.
func (s *dmService) storeAttachment(ctx context.Context, filename string, data []byte) error {
	if s.syncWrites {
		if err := s.files.Write(ctx, filename, bytes.NewReader(data), int64(len(data)), ""); err != nil {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldFile, filename).Msg("attachment write failed")
			return fmt.Errorf("store attachment: %w", err)
		}
		return nil
	}

	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		l := log.L()
		if err := s.files.Write(writeCtx, filename, bytes.NewReader(data), int64(len(data)), ""); err != nil {
			l.Error().Err(err).Str(log.FieldFile, filename).Msg("attachment write failed")
			return
		}
		l.Debug().Str(log.FieldFile, filename).Int("size", len(data)).Msg("attachment saved")
	}()
	return nil
}

// decodeFilePayload decodes a base64 attachment body, with or without a
// data-URL prefix ("data:image/png;base64,....").
func decodeFilePayload(data string) ([]byte, error) {
	if idx := strings.IndexByte(data, ','); idx >= 0 {
		data = data[idx+1:]
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("bad base64 payload")
	}
	return decoded, nil
}

// attachmentName derives a collision-resistant stored filename from the
// upload time plus the original extension.
func attachmentName(original string) string {
	return strconv.FormatInt(time.Now().UnixNano(), 10) + filepath.Ext(original)
}
