package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/LeaseForge/internal/adapter/memory"
	"github.com/Strob0t/LeaseForge/internal/domain"
	"github.com/Strob0t/LeaseForge/internal/domain/lease"
	"github.com/Strob0t/LeaseForge/internal/port/messagequeue"
)

func TestDoubleSignatureRejected(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	l := mustTransition(t, svc, landlord, mustCreate(t, svc), lease.StatusSentToTenant, "")
	l = mustSign(t, svc, tenant, l)

	_, err := svc.RecordSignature(ctx, tenant, l.ID, lease.SignRequest{
		Party: lease.PartyTenant, SignatureImageRef: "blob://again", ExpectedVersion: l.Version,
	}, "198.51.100.7")
	assertErr(t, err, domain.ErrAlreadySigned)

	got, err := store.GetLease(ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != l.Version || got.TenantSignature.SignatureImageRef != "blob://"+tenant.ID {
		t.Fatal("second signature modified the lease")
	}
}

func TestSignThenSend(t *testing.T) {
	svc, _, _ := newTestService(t)
	l := mustCreate(t, svc)

	l = mustSign(t, svc, landlord, l)
	if l.Status != lease.StatusSignedByLandlord || l.LandlordSignature.SourceIP != "192.0.2.1" {
		t.Fatalf("after landlord sign: %s %+v", l.Status, l.LandlordSignature)
	}
	l = mustTransition(t, svc, landlord, l, lease.StatusSentToTenant, "")
	l = mustSign(t, svc, tenant, l)

	if l.Status != lease.StatusFullyExecuted || !l.BothSigned() {
		t.Fatalf("status = %s", l.Status)
	}
}

func TestTenantSignsAfterLandlordSigned(t *testing.T) {
	svc, _, sink := newTestService(t)
	l := mustCreate(t, svc)
	l = mustTransition(t, svc, landlord, l, lease.StatusSentToTenant, "")
	l = mustTransition(t, svc, tenant, l, lease.StatusSentToLandlord, "")

	l = mustSign(t, svc, landlord, l)
	if l.Status != lease.StatusSignedByLandlord {
		t.Fatalf("after landlord sign: %s", l.Status)
	}
	l = mustSign(t, svc, tenant, l)
	if l.Status != lease.StatusFullyExecuted || !l.BothSigned() {
		t.Fatalf("after tenant sign: %s", l.Status)
	}
	n := len(l.StatusHistory)
	if l.StatusHistory[n-2].Status != lease.StatusSignedByTenant {
		t.Errorf("history[-2] = %s, want signed_by_tenant", l.StatusHistory[n-2].Status)
	}
	if subjects := sink.subjects(); subjects[len(subjects)-1] != messagequeue.SubjectLeaseSigned {
		t.Errorf("last event = %s", subjects[len(subjects)-1])
	}
}

func TestSignatureRejects(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	l := mustCreate(t, svc)

	tests := []struct {
		name  string
		actor lease.Actor
		party lease.Party
		ref   string
		want  error
	}{
		{"tenant signs draft", tenant, lease.PartyTenant, "blob://t", domain.ErrIllegalTransition},
		{"tenant signs as landlord", tenant, lease.PartyLandlord, "blob://t", domain.ErrUnauthorized},
		{"missing image ref", landlord, lease.PartyLandlord, "", domain.ErrValidation},
		{"unknown party", landlord, "witness", "blob://l", domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordSignature(ctx, tt.actor, l.ID, lease.SignRequest{
				Party: tt.party, SignatureImageRef: tt.ref, ExpectedVersion: l.Version,
			}, "")
			assertErr(t, err, tt.want)
		})
	}
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestUploadSignatureImage(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.SetBlobStore(memory.NewBlobStore(), 1024)
	ctx := context.Background()

	obj, err := svc.UploadSignatureImage(ctx, tenant, pngHeader)
	if err != nil {
		t.Fatal(err)
	}
	if obj.ContentType != "image/png" || len(obj.Key) != 64 || obj.Ref != "blob://"+obj.Key {
		t.Fatalf("object = %+v", obj)
	}

	again, err := svc.UploadSignatureImage(ctx, landlord, pngHeader)
	if err != nil {
		t.Fatal(err)
	}
	if again.Key != obj.Key {
		t.Fatal("same image must map to the same key")
	}

	data, ct, err := svc.SignatureImage(ctx, obj.Key)
	if err != nil || ct != "image/png" || !bytes.Equal(data, pngHeader) {
		t.Fatalf("SignatureImage = %q, %q, %v", data, ct, err)
	}

	_, _, err = svc.SignatureImage(ctx, "missing")
	assertErr(t, err, domain.ErrNotFound)
}

func TestUploadSignatureImageRejects(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.UploadSignatureImage(ctx, tenant, pngHeader); !errors.Is(err, ErrBlobStoreDisabled) {
		t.Fatalf("err = %v, want ErrBlobStoreDisabled", err)
	}

	svc.SetBlobStore(memory.NewBlobStore(), 32)
	tests := []struct {
		name  string
		actor lease.Actor
		data  []byte
		want  error
	}{
		{"empty", tenant, nil, domain.ErrValidation},
		{"not an image", tenant, []byte("hello, world"), domain.ErrValidation},
		{"too large", tenant, append(append([]byte{}, pngHeader...), make([]byte, 64)...), domain.ErrValidation},
		{"system actor", lease.SystemActor, pngHeader, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UploadSignatureImage(ctx, tt.actor, tt.data)
			assertErr(t, err, tt.want)
		})
	}
}
