package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/skyqueue/internal/lock"
	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// LockPurposeQueue scopes registry locks guarding a user's queue.
const LockPurposeQueue = "queue"

type QueueService interface {
	Upload(ctx context.Context, userDid string, data []byte, postText string, isNsfw bool) (*models.QueuedImage, error)
	Append(ctx context.Context, img *models.NewQueuedImage) (*models.QueuedImage, error)
	Get(ctx context.Context, userDid, storageKey string) (*models.QueuedImage, error)
	UpdateFields(ctx context.Context, userDid, storageKey string, u models.QueuedImageUpdate) error
	List(ctx context.Context, userDid string) ([]*models.QueuedImage, error)
	PeekHead(ctx context.Context, userDid string) (*models.QueuedImage, bool, error)
	MoveTo(ctx context.Context, userDid, storageKey string, destination int) error
	Delete(ctx context.Context, userDid, storageKey string) error
	MarkPosted(ctx context.Context, userDid string, img *models.QueuedImage) (*models.PostedImage, error)
	History(ctx context.Context, userDid string, limit int) ([]*models.PostedImage, error)
}

type queueService struct {
	qr       repository.QueueRepository
	pr       repository.PostedImageRepository
	blobs    BlobStore
	locks    *lock.Registry
	lockWait time.Duration
	now      func() time.Time
}

func NewQueueService(
	qr repository.QueueRepository,
	pr repository.PostedImageRepository,
	blobs BlobStore,
	locks *lock.Registry,
	lockWait time.Duration) QueueService {
	return &queueService{
		qr:       qr,
		pr:       pr,
		blobs:    blobs,
		locks:    locks,
		lockWait: lockWait,
		now:      time.Now,
	}
}

var allowedImageTypes = map[string]struct{}{
	"jpg": {}, "png": {}, "webp": {}, "gif": {},
}

// Upload stores the image bytes under a fresh storage key and appends the
// image to the end of the user's queue.
func (s *queueService) Upload(ctx context.Context, userDid string, data []byte, postText string, isNsfw bool) (*models.QueuedImage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return nil, ErrUnsupportedImage
	}
	if _, ok := allowedImageTypes[kind.Extension]; !ok {
		return nil, fmt.Errorf("%s: %w", kind.Extension, ErrUnsupportedImage)
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	storageKey := fmt.Sprintf("%s.%s", id, kind.Extension)

	if err := s.blobs.Put(ctx, storageKey, data, kind.MIME.Value); err != nil {
		return nil, fmt.Errorf("error uploading image: %w", err)
	}

	img, err := s.Append(ctx, &models.NewQueuedImage{
		UserDid:    userDid,
		StorageKey: storageKey,
		PostText:   postText,
		IsNsfw:     isNsfw,
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, storageKey); delErr != nil {
			slog.Warn("failed to remove orphaned upload", "storage_key", storageKey, "error", delErr)
		}
		return nil, err
	}

	return img, nil
}

func (s *queueService) Append(ctx context.Context, img *models.NewQueuedImage) (*models.QueuedImage, error) {
	guard, err := s.lockQueue(ctx, img.UserDid)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	return s.qr.Append(ctx, img)
}

func (s *queueService) Get(ctx context.Context, userDid, storageKey string) (*models.QueuedImage, error) {
	return s.qr.Get(ctx, userDid, storageKey)
}

func (s *queueService) UpdateFields(ctx context.Context, userDid, storageKey string, u models.QueuedImageUpdate) error {
	return s.qr.UpdateFields(ctx, userDid, storageKey, u)
}

func (s *queueService) List(ctx context.Context, userDid string) ([]*models.QueuedImage, error) {
	return s.qr.ListForUser(ctx, userDid)
}

func (s *queueService) PeekHead(ctx context.Context, userDid string) (*models.QueuedImage, bool, error) {
	return s.qr.PeekHead(ctx, nil, userDid)
}

func (s *queueService) MoveTo(ctx context.Context, userDid, storageKey string, destination int) error {
	guard, err := s.lockQueue(ctx, userDid)
	if err != nil {
		return err
	}
	defer guard.Release()

	return s.qr.MoveTo(ctx, userDid, storageKey, destination)
}

func (s *queueService) Delete(ctx context.Context, userDid, storageKey string) error {
	guard, err := s.lockQueue(ctx, userDid)
	if err != nil {
		return err
	}
	defer guard.Release()

	return s.qr.Delete(ctx, userDid, storageKey)
}

// MarkPosted moves img from the queue into the posted history.
func (s *queueService) MarkPosted(ctx context.Context, userDid string, img *models.QueuedImage) (*models.PostedImage, error) {
	guard, err := s.lockQueue(ctx, userDid)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	return s.pr.MoveToPosted(ctx, userDid, img, s.now())
}

func (s *queueService) History(ctx context.Context, userDid string, limit int) ([]*models.PostedImage, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.pr.ListByUser(ctx, userDid, limit)
}

func (s *queueService) lockQueue(ctx context.Context, userDid string) (*lock.Guard, error) {
	guard, err := s.locks.AcquireTimeout(ctx, LockPurposeQueue, userDid, s.lockWait)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, errors.Join(repository.ErrConcurrency, err)
		}
		return nil, err
	}
	return guard, nil
}
