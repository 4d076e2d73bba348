package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.DeleteObjectOutput), args.Error(1)
}

type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return m.Called(ctx, key, data, contentType).Error(0)
}

func (m *MockBlobStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type MockPoster struct {
	mock.Mock
}

func (m *MockPoster) Post(ctx context.Context, userDid string, image []byte, text string, isNsfw bool) error {
	return m.Called(ctx, userDid, image, text, isNsfw).Error(0)
}

type MockQueueRepository struct {
	mock.Mock
}

func (m *MockQueueRepository) Append(ctx context.Context, img *models.NewQueuedImage) (*models.QueuedImage, error) {
	args := m.Called(ctx, img)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueuedImage), args.Error(1)
}

func (m *MockQueueRepository) Get(ctx context.Context, userDid, storageKey string) (*models.QueuedImage, error) {
	args := m.Called(ctx, userDid, storageKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueuedImage), args.Error(1)
}

func (m *MockQueueRepository) UpdateFields(ctx context.Context, userDid, storageKey string, u models.QueuedImageUpdate) error {
	return m.Called(ctx, userDid, storageKey, u).Error(0)
}

func (m *MockQueueRepository) ListForUser(ctx context.Context, userDid string) ([]*models.QueuedImage, error) {
	args := m.Called(ctx, userDid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.QueuedImage), args.Error(1)
}

func (m *MockQueueRepository) MoveTo(ctx context.Context, userDid, storageKey string, destination int) error {
	return m.Called(ctx, userDid, storageKey, destination).Error(0)
}

func (m *MockQueueRepository) Delete(ctx context.Context, userDid, storageKey string) error {
	return m.Called(ctx, userDid, storageKey).Error(0)
}

// Repository mocks record whether a tx was passed, never the *sql.Tx itself:
// database/sql mutates it from another goroutine while testify formats args.

func (m *MockQueueRepository) DeleteTx(ctx context.Context, tx *sql.Tx, userDid, storageKey string) error {
	return m.Called(ctx, tx != nil, userDid, storageKey).Error(0)
}

func (m *MockQueueRepository) PeekHead(ctx context.Context, tx *sql.Tx, userDid string) (*models.QueuedImage, bool, error) {
	args := m.Called(ctx, tx != nil, userDid)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.QueuedImage), args.Bool(1), args.Error(2)
}

type MockPostedImageRepository struct {
	mock.Mock
}

func (m *MockPostedImageRepository) MoveToPosted(ctx context.Context, userDid string, img *models.QueuedImage, postedAt time.Time) (*models.PostedImage, error) {
	args := m.Called(ctx, userDid, img, postedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PostedImage), args.Error(1)
}

func (m *MockPostedImageRepository) ListByUser(ctx context.Context, userDid string, limit int) ([]*models.PostedImage, error) {
	args := m.Called(ctx, userDid, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PostedImage), args.Error(1)
}

type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) ListActiveWithTimezone(ctx context.Context) ([]*models.ScheduleWithTimezone, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ScheduleWithTimezone), args.Error(1)
}

func (m *MockScheduleRepository) ListByUser(ctx context.Context, userDid string) ([]*models.PostingSchedule, error) {
	args := m.Called(ctx, userDid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PostingSchedule), args.Error(1)
}

func (m *MockScheduleRepository) ReplaceForUser(ctx context.Context, userDid string, schedules []models.ScheduleInput) ([]*models.PostingSchedule, error) {
	args := m.Called(ctx, userDid, schedules)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PostingSchedule), args.Error(1)
}

func (m *MockScheduleRepository) MarkExecuted(ctx context.Context, tx *sql.Tx, scheduleID int64, occurrence, now time.Time) (bool, error) {
	args := m.Called(ctx, tx != nil, scheduleID, occurrence, now)
	return args.Bool(0), args.Error(1)
}

type MockSettingsRepository struct {
	mock.Mock
}

func (m *MockSettingsRepository) GetByUserDid(ctx context.Context, userDid string) (*models.UserSettings, bool, error) {
	args := m.Called(ctx, userDid)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.UserSettings), args.Bool(1), args.Error(2)
}

func (m *MockSettingsRepository) UpsertTimezone(ctx context.Context, userDid, timezone string, now time.Time) error {
	return m.Called(ctx, userDid, timezone, now).Error(0)
}

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) GetByDid(ctx context.Context, userDid string) (*models.BlueskySession, error) {
	args := m.Called(ctx, userDid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BlueskySession), args.Error(1)
}

func (m *MockSessionRepository) Upsert(ctx context.Context, s *models.BlueskySession) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockSessionRepository) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*models.BlueskySession, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BlueskySession), args.Error(1)
}
