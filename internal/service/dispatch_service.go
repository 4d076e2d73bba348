package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/repository"
)

// Dispatcher acts on one due schedule occurrence.
type Dispatcher interface {
	Dispatch(ctx context.Context, due models.DueSchedule) error
}

// PostDispatcher posts the head of a user's queue for a due schedule.
//
// The head is read in the same transaction that marks the schedule executed,
// so a crash after the read cannot post the same occurrence twice. A failed
// post leaves the image at the head until the schedule's next occurrence.
type PostDispatcher struct {
	db          *sql.DB
	qr          repository.QueueRepository
	sr          repository.ScheduleRepository
	queue       QueueService
	blobs       BlobStore
	poster      Poster
	postTimeout time.Duration
	now         func() time.Time
}

func NewPostDispatcher(
	db *sql.DB,
	qr repository.QueueRepository,
	sr repository.ScheduleRepository,
	queue QueueService,
	blobs BlobStore,
	poster Poster,
	postTimeout time.Duration) *PostDispatcher {
	return &PostDispatcher{
		db:          db,
		qr:          qr,
		sr:          sr,
		queue:       queue,
		blobs:       blobs,
		poster:      poster,
		postTimeout: postTimeout,
		now:         time.Now,
	}
}

func (d *PostDispatcher) Dispatch(ctx context.Context, due models.DueSchedule) error {
	log := slog.With("schedule_id", due.ScheduleID, "user_did", due.UserDid)

	var head *models.QueuedImage
	claimed := false
	err := repository.WithTx(ctx, d.db, func(tx *sql.Tx) error {
		var err error
		claimed, err = d.sr.MarkExecuted(ctx, tx, due.ScheduleID, due.Occurrence, d.now())
		if err != nil || !claimed {
			return err
		}

		img, found, err := d.qr.PeekHead(ctx, tx, due.UserDid)
		if err != nil {
			return err
		}
		if found {
			head = img
		}
		return nil
	})
	if err != nil {
		log.Error("failed to claim schedule occurrence", "error", err)
		return fmt.Errorf("claim schedule %d: %w", due.ScheduleID, err)
	}
	if !claimed {
		log.Info("occurrence already claimed", "occurrence", due.Occurrence)
		return nil
	}

	if head == nil {
		log.Info("queue empty, nothing to post")
		return nil
	}
	log = log.With("storage_key", head.StorageKey)

	data, err := d.blobs.Get(ctx, head.StorageKey)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			log.Warn("image missing from storage, dropping queue entry")
			if delErr := d.queue.Delete(ctx, due.UserDid, head.StorageKey); delErr != nil && !errors.Is(delErr, repository.ErrNotFound) {
				log.Error("failed to drop orphaned queue entry", "error", delErr)
				return delErr
			}
			return nil
		}
		log.Error("failed to read image", "error", err)
		return err
	}

	postCtx, cancel := context.WithTimeout(ctx, d.postTimeout)
	defer cancel()

	if err := d.poster.Post(postCtx, due.UserDid, data, head.PostText, head.IsNsfw); err != nil {
		log.Error("post failed, image stays queued", "error", err)
		return fmt.Errorf("post %s: %w", head.StorageKey, err)
	}

	posted, err := d.queue.MarkPosted(ctx, due.UserDid, head)
	if err != nil {
		log.Error("posted but failed to move image to history", "error", err)
		return err
	}

	log.Info("image posted", "posted_id", posted.ID)
	return nil
}
