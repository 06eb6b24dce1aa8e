package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rehearsal-ai/backend/errs"
	"github.com/rehearsal-ai/backend/models"
	"github.com/rehearsal-ai/backend/repository"
)

const (
	whiteboardFilePattern = "snapshot_%03d.png"
	screenFilePattern     = "capture_%03d.png"

	// Bound on sequence recompute attempts when concurrent writers
	// collide on the (session, kind, sequence) unique index.
	maxSequenceAttempts = 3
)

// CommunicationManager owns the channel state of live sessions: which
// modes are currently active, and the capture of whiteboard snapshots
// and screen frames into gap-free per-kind sequences.
type CommunicationManager struct {
	store repository.Store
	media *MediaStorage
	locks *SessionLocks
}

func NewCommunicationManager(store repository.Store, media *MediaStorage, locks *SessionLocks) *CommunicationManager {
	return &CommunicationManager{
		store: store,
		media: media,
		locks: locks,
	}
}

// ActiveModes returns the currently active mode set of a session.
func (c *CommunicationManager) ActiveModes(ctx context.Context, sessionID string) (models.StringList, error) {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errs.Newf(errs.KindConfiguration, "session %s not found", sessionID)
	}
	return session.ActiveModes, nil
}

// EnableMode re-activates a mode the session was configured with.
// Enabling an already-active mode is a no-op returning the unchanged
// set.
func (c *CommunicationManager) EnableMode(ctx context.Context, sessionID, mode string) (models.StringList, error) {
	return c.toggleMode(ctx, sessionID, mode, true)
}

// DisableMode deactivates a mode. Disabling a mode that is not active is
// a no-op returning the unchanged set.
func (c *CommunicationManager) DisableMode(ctx context.Context, sessionID, mode string) (models.StringList, error) {
	return c.toggleMode(ctx, sessionID, mode, false)
}

func (c *CommunicationManager) toggleMode(ctx context.Context, sessionID, mode string, enable bool) (models.StringList, error) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	session, err := c.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !models.StringList(models.KnownModes).Contains(mode) {
		return nil, errs.Newf(errs.KindConfiguration, "unknown communication mode %q", mode)
	}
	if !session.Config.EnabledModes.Contains(mode) {
		return nil, errs.Newf(errs.KindConfiguration, "mode %s was not enabled for session %s at creation", mode, sessionID)
	}

	active := session.ActiveModes
	if enable == active.Contains(mode) {
		return active, nil
	}
	if enable {
		active = append(active, mode)
	} else {
		active = active.Without(mode)
	}

	if err := c.store.SetSessionActiveModes(ctx, sessionID, active); err != nil {
		return nil, err
	}
	c.touch(ctx, sessionID)
	slog.Info("Communication mode toggled", "session_id", sessionID, "mode", mode, "enabled", enable)
	return active, nil
}

// SaveWhiteboardSnapshot stores one whiteboard frame and claims the next
// sequence number for it.
func (c *CommunicationManager) SaveWhiteboardSnapshot(ctx context.Context, sessionID string, data []byte) (*models.MediaFile, error) {
	return c.saveMedia(ctx, sessionID, models.ModeWhiteboard, models.MediaKindWhiteboard, whiteboardFilePattern, data)
}

// SaveScreenCapture stores one screen frame and claims the next sequence
// number for it.
func (c *CommunicationManager) SaveScreenCapture(ctx context.Context, sessionID string, data []byte) (*models.MediaFile, error) {
	return c.saveMedia(ctx, sessionID, models.ModeScreenShare, models.MediaKindScreenShare, screenFilePattern, data)
}

// ListMedia returns the stored artifacts of a session, optionally
// filtered by kind, in sequence order.
func (c *CommunicationManager) ListMedia(ctx context.Context, sessionID, kind string) ([]models.MediaFile, error) {
	if kind != "" && kind != models.MediaKindWhiteboard && kind != models.MediaKindScreenShare {
		return nil, errs.Newf(errs.KindConfiguration, "unknown media kind %q", kind)
	}
	return c.store.GetMediaFiles(ctx, sessionID, kind)
}

// saveMedia writes the artifact to disk first, then records it. Sequence
// numbers per (session, kind) are gap-free: the session lock serializes
// writers in this process and the unique index catches cross-process
// collisions, which are resolved by recomputing the sequence.
func (c *CommunicationManager) saveMedia(ctx context.Context, sessionID, mode, kind, pattern string, data []byte) (*models.MediaFile, error) {
	if len(data) == 0 {
		return nil, errs.New(errs.KindConfiguration, "media payload must not be empty")
	}

	unlock := c.locks.Lock(sessionID)
	defer unlock()

	session, err := c.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.ActiveModes.Contains(mode) {
		return nil, errs.Newf(errs.KindConfiguration, "mode %s is not active for session %s", mode, sessionID)
	}

	for attempt := 1; attempt <= maxSequenceAttempts; attempt++ {
		seq, err := c.store.NextMediaSequence(ctx, sessionID, kind)
		if err != nil {
			return nil, err
		}

		path, err := c.media.Write(sessionID, kind, fmt.Sprintf(pattern, seq), data)
		if err != nil {
			return nil, err
		}

		file := &models.MediaFile{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			Kind:      kind,
			FilePath:  path,
			Sequence:  seq,
			SizeBytes: int64(len(data)),
			CreatedAt: time.Now(),
		}
		err = c.store.SaveMediaFile(ctx, file)
		if err == nil {
			c.touch(ctx, sessionID)
			return file, nil
		}

		if rmErr := c.media.Remove(path); rmErr != nil {
			slog.Warn("Failed to remove orphaned media artifact", "error", rmErr, "path", path)
		}
		if !repository.IsUniqueViolation(err) {
			return nil, err
		}
		slog.Warn("Media sequence collision, recomputing", "session_id", sessionID, "kind", kind, "sequence", seq, "attempt", attempt)
	}
	return nil, errs.Newf(errs.KindDataStore, "could not claim a media sequence for session %s after %d attempts", sessionID, maxSequenceAttempts)
}

func (c *CommunicationManager) liveSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errs.Newf(errs.KindConfiguration, "session %s not found", sessionID)
	}
	if session.IsTerminal() {
		return nil, errs.Newf(errs.KindConfiguration, "session %s is completed, its communication state is frozen", sessionID)
	}
	return session, nil
}

func (c *CommunicationManager) touch(ctx context.Context, sessionID string) {
	if err := c.store.TouchSession(ctx, sessionID, time.Now()); err != nil {
		slog.Warn("Failed to update session activity", "error", err, "session_id", sessionID)
	}
}
