package access_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/classware/access"
)

func TestSignAndVerifyGrantBundle(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	grants := []*access.LibraryGrant{
		access.NewLibraryGrantBuilder().ID("lib-1").School("school-1").Subject("math").Build(),
		access.NewLibraryGrantBuilder().ID("lib-2").School("school-1").Subject("biology").Build(),
	}
	bundle, err := access.SignGrantBundle(priv, grants)
	if err != nil {
		t.Fatalf("sign bundle: %v", err)
	}
	ok, err := access.VerifyGrantBundle(pub, bundle)
	if err != nil || !ok {
		t.Fatalf("verify bundle: ok=%v err=%v", ok, err)
	}

	// tampering with a grant invalidates its signature
	bundle.Grants[0].Level = access.LevelLimited
	if ok, _ := access.VerifyGrantBundle(pub, bundle); ok {
		t.Fatalf("tampered bundle must not verify")
	}
}

func TestVerifyGrantBundleMissingSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	bundle, err := access.SignGrantBundle(priv, []*access.LibraryGrant{
		access.NewLibraryGrantBuilder().ID("lib-1").School("school-1").Subject("math").Build(),
	})
	if err != nil {
		t.Fatalf("sign bundle: %v", err)
	}
	delete(bundle.Signatures, "lib-1")
	if ok, _ := access.VerifyGrantBundle(pub, bundle); ok {
		t.Fatalf("bundle without signatures must not verify")
	}
}

func TestApplySignedBundle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, &access.User{ID: "t-1", SchoolID: "school-1", Role: access.RoleTeacher})

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	bundle, err := access.SignGrantBundle(priv, []*access.LibraryGrant{
		access.NewLibraryGrantBuilder().ID("lib-math").School("school-1").Subject("math").Build(),
	})
	if err != nil {
		t.Fatalf("sign bundle: %v", err)
	}
	if err := env.engine.ApplySignedBundle(ctx, pub, bundle); err != nil {
		t.Fatalf("apply bundle: %v", err)
	}

	res := env.engine.CheckAccess(ctx, "t-1", access.ResourceSubject, "math")
	if !res.HasAccess {
		t.Fatalf("expected allow after bundle apply, got %+v", res)
	}

	// a bundle signed with a different key must be rejected
	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
	if err := env.engine.ApplySignedBundle(ctx, otherPub, bundle); err == nil {
		t.Fatalf("expected verification failure with wrong key")
	}
}

func TestGrantBundleDistributorNotify(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.grantLibrary(t, access.NewLibraryGrantBuilder().
		ID("lib-math").School("school-1").Subject("math").Build())

	dist, err := access.NewGrantBundleDistributor(env.library,
		access.WithBundleRotationInterval(time.Hour))
	if err != nil {
		t.Fatalf("new distributor: %v", err)
	}

	received := make(chan *access.SignedGrantBundle, 1)
	dist.Subscribe("school-1", access.BundleSubscriberFunc(
		func(ctx context.Context, schoolID string, pub ed25519.PublicKey, bundle *access.SignedGrantBundle) error {
			select {
			case received <- bundle:
			default:
			}
			return nil
		}))

	dist.Start(ctx)
	defer dist.Stop()
	dist.Notify("school-1")

	select {
	case bundle := <-received:
		if len(bundle.Grants) != 1 || bundle.Grants[0].ID != "lib-math" {
			t.Fatalf("unexpected bundle: %+v", bundle.Grants)
		}
		ok, err := access.VerifyGrantBundle(dist.PublicKey(), bundle)
		if err != nil || !ok {
			t.Fatalf("distributed bundle must verify: ok=%v err=%v", ok, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("bundle never delivered")
	}
}
