package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/Strob0t/LeaseForge/internal/domain"
	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/port/blobstore"
	"github.com/Strob0t/LeaseForge/internal/port/messagequeue"
)

// ErrBlobStoreDisabled is returned when no blob store is configured.
var ErrBlobStoreDisabled = errors.New("signature image storage is not configured")

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

// RecordSignature attests that the actor signed as req.Party. When both
// parties have signed and no change is open, the lease is fully executed in
// the same write.
func (s *LeaseService) RecordSignature(ctx context.Context, actor lease.Actor, id string, req lease.SignRequest, sourceIP string) (*lease.Lease, error) {
	l, from, err := s.write(ctx, "sign", actor, id, req.ExpectedVersion, func(l *lease.Lease, now time.Time) (bool, error) {
		return true, l.Sign(actor, req.Party, req.SignatureImageRef, sourceIP, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSignature(ctx, string(req.Party))
	if l.Status == lease.StatusFullyExecuted {
		slog.InfoContext(ctx, "lease fully executed", "lease_id", id)
	}

	s.emit(ctx, LeaseEvent{
		Subject: messagequeue.SubjectLeaseSigned,
		Lease:   l,
		Actor:   actor,
		From:    from,
		Party:   req.Party,
	})
	return l, nil
}

// UploadSignatureImage stores a PNG or JPEG signature image and returns its
// object. The key is the BLAKE2b-256 digest of the image, so uploading the
// same image twice yields the same reference.
func (s *LeaseService) UploadSignatureImage(ctx context.Context, actor lease.Actor, data []byte) (blobstore.Object, error) {
	if s.blobs == nil {
		return blobstore.Object{}, ErrBlobStoreDisabled
	}
	switch actor.Role {
	case lease.RoleLandlord, lease.RoleTenant, lease.RoleAdmin:
	default:
		return blobstore.Object{}, fmt.Errorf("%w: role %q may not upload signatures", domain.ErrUnauthorized, actor.Role)
	}
	if len(data) == 0 {
		return blobstore.Object{}, fmt.Errorf("%w: empty signature image", domain.ErrValidation)
	}
	if s.maxBlob > 0 && int64(len(data)) > s.maxBlob {
		return blobstore.Object{}, fmt.Errorf("%w: signature image exceeds %d bytes", domain.ErrValidation, s.maxBlob)
	}
	contentType := http.DetectContentType(data)
	if !allowedImageTypes[contentType] {
		return blobstore.Object{}, fmt.Errorf("%w: unsupported image type %s", domain.ErrValidation, contentType)
	}

	sum := blake2b.Sum256(data)
	key := hex.EncodeToString(sum[:])
	obj, err := s.blobs.Put(ctx, key, contentType, data)
	if err != nil {
		return blobstore.Object{}, fmt.Errorf("store signature image: %w", err)
	}
	slog.InfoContext(ctx, "signature image stored", "key", key, "size", obj.Size, "actor_id", actor.ID)
	return obj, nil
}

// SignatureImage returns a stored signature image and its content type.
func (s *LeaseService) SignatureImage(ctx context.Context, key string) ([]byte, string, error) {
	if s.blobs == nil {
		return nil, "", ErrBlobStoreDisabled
	}
	data, contentType, err := s.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, "", fmt.Errorf("signature image %s: %w", key, domain.ErrNotFound)
		}
		return nil, "", err
	}
	return data, contentType, nil
}
