package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/skyqueue/internal/repository"
	"github.com/maheshrc27/skyqueue/internal/transfer"
	"github.com/maheshrc27/skyqueue/pkg/utils"
	"golang.org/x/oauth2"
)

// Poster publishes one image post on behalf of a user.
type Poster interface {
	Post(ctx context.Context, userDid string, image []byte, text string, isNsfw bool) error
}

const (
	feedPostCollection = "app.bsky.feed.post"
	imagesEmbedType    = "app.bsky.embed.images"
	selfLabelsType     = "com.atproto.label.defs#selfLabels"
	nsfwLabel          = "nudity"
)

type BlueskyPoster struct {
	sessions   repository.SessionRepository
	secretKey  []byte
	httpClient *http.Client
	now        func() time.Time
}

func NewBlueskyPoster(sessions repository.SessionRepository, secretKey string, timeout time.Duration) *BlueskyPoster {
	return &BlueskyPoster{
		sessions:   sessions,
		secretKey:  []byte(secretKey),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (b *BlueskyPoster) Post(ctx context.Context, userDid string, image []byte, text string, isNsfw bool) error {
	session, err := b.sessions.GetByDid(ctx, userDid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("no session for %s: %w", userDid, ErrAuthInvalid)
		}
		return fmt.Errorf("load session: %w", err)
	}
	if !session.ExpiresAt.After(b.now()) {
		return fmt.Errorf("session for %s expired at %s: %w", userDid, session.ExpiresAt.Format(time.RFC3339), ErrAuthInvalid)
	}

	accessToken, err := utils.Decrypt(session.AccessToken, b.secretKey)
	if err != nil {
		return fmt.Errorf("decrypt session: %w", ErrAuthInvalid)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		Expiry:      session.ExpiresAt,
	}))
	pds := strings.TrimRight(session.PdsURL, "/")

	blob, err := b.uploadBlob(ctx, client, pds, image)
	if err != nil {
		return err
	}

	post := transfer.FeedPost{
		Type:      feedPostCollection,
		Text:      text,
		CreatedAt: b.now().UTC().Format(time.RFC3339),
		Embed: &transfer.ImageEmbed{
			Type:   imagesEmbedType,
			Images: []transfer.EmbedImage{{Alt: "", Image: blob}},
		},
	}
	if isNsfw {
		post.Labels = &transfer.SelfLabels{
			Type:   selfLabelsType,
			Values: []transfer.SelfLabel{{Val: nsfwLabel}},
		}
	}

	body, err := json.Marshal(transfer.CreateRecordRequest{
		Repo:       userDid,
		Collection: feedPostCollection,
		Record:     post,
	})
	if err != nil {
		return fmt.Errorf("encode post: %w", err)
	}

	var created transfer.CreateRecordResponse
	if err := b.call(ctx, client, pds+"/xrpc/com.atproto.repo.createRecord", "application/json", body, &created); err != nil {
		return err
	}

	slog.Info("posted image", "user_did", userDid, "uri", created.URI)
	return nil
}

func (b *BlueskyPoster) uploadBlob(ctx context.Context, client *http.Client, pds string, image []byte) (json.RawMessage, error) {
	contentType := "application/octet-stream"
	if kind, err := filetype.Match(image); err == nil && kind != types.Unknown {
		contentType = kind.MIME.Value
	}

	var uploaded transfer.UploadBlobResponse
	if err := b.call(ctx, client, pds+"/xrpc/com.atproto.repo.uploadBlob", contentType, image, &uploaded); err != nil {
		return nil, err
	}
	if len(uploaded.Blob) == 0 {
		return nil, fmt.Errorf("upload blob: empty blob reference: %w", ErrRejected)
	}
	return uploaded.Blob, nil
}

func (b *BlueskyPoster) call(ctx context.Context, client *http.Client, url, contentType string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("%s: %w: %v", url, ErrNetwork, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w: %v", ErrNetwork, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode response: %w: %v", ErrRejected, err)
		}
		return nil
	}

	return classifyXRPCError(resp.StatusCode, payload)
}

func classifyXRPCError(status int, payload []byte) error {
	var xrpcErr transfer.XRPCError
	_ = json.Unmarshal(payload, &xrpcErr)
	detail := fmt.Sprintf("status %d %s: %s", status, xrpcErr.Error, xrpcErr.Message)

	switch {
	case status == http.StatusUnauthorized,
		xrpcErr.Error == "ExpiredToken",
		xrpcErr.Error == "InvalidToken":
		return fmt.Errorf("%s: %w", detail, ErrAuthInvalid)
	case status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("%s: %w", detail, ErrNetwork)
	default:
		return fmt.Errorf("%s: %w", detail, ErrRejected)
	}
}
