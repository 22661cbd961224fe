package access

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// SIGNED GRANT BUNDLES
// ============================================================================

// SignedGrantBundle is a set of library grants signed by the platform owner,
// the provisioning path by which a content library pushes access to schools.
type SignedGrantBundle struct {
	Grants     []*LibraryGrant   `json:"grants"`
	Signatures map[string]string `json:"signatures"` // grant ID -> base64 signature
	Meta       map[string]any    `json:"meta,omitempty"`
}

// SignGrant returns an ed25519 signature (base64) over the grant's ID and
// checksum.
func SignGrant(priv ed25519.PrivateKey, g *LibraryGrant) (string, error) {
	data, err := json.Marshal(struct {
		ID       string
		Checksum string
	}{
		ID:       g.ID,
		Checksum: g.Checksum(),
	})
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(priv, data)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyGrantSignature checks a signature against the grant checksum.
func VerifyGrantSignature(pub ed25519.PublicKey, g *LibraryGrant, sigB64 string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(struct {
		ID       string
		Checksum string
	}{
		ID:       g.ID,
		Checksum: g.Checksum(),
	})
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, data, sig), nil
}

// SignGrantBundle signs each grant with priv and returns a SignedGrantBundle.
func SignGrantBundle(priv ed25519.PrivateKey, grants []*LibraryGrant) (*SignedGrantBundle, error) {
	b := &SignedGrantBundle{Grants: grants, Signatures: make(map[string]string)}
	for _, g := range grants {
		s, err := SignGrant(priv, g)
		if err != nil {
			return nil, err
		}
		b.Signatures[g.ID] = s
	}
	return b, nil
}

// VerifyGrantBundle verifies every signature in the bundle.
func VerifyGrantBundle(pub ed25519.PublicKey, b *SignedGrantBundle) (bool, error) {
	for _, g := range b.Grants {
		sig, ok := b.Signatures[g.ID]
		if !ok {
			return false, fmt.Errorf("missing signature for grant %s", g.ID)
		}
		okv, err := VerifyGrantSignature(pub, g, sig)
		if err != nil || !okv {
			return false, fmt.Errorf("bad signature for grant %s: %v", g.ID, err)
		}
	}
	return true, nil
}

// ApplySignedBundle verifies the bundle and persists its grants. Grants
// arriving inactive are stored as exclusion markers via soft revoke.
func (e *Engine) ApplySignedBundle(ctx context.Context, pub ed25519.PublicKey, bundle *SignedGrantBundle) error {
	ok, err := VerifyGrantBundle(pub, bundle)
	if err != nil || !ok {
		return fmt.Errorf("bundle verification failed: %v", err)
	}
	for _, g := range bundle.Grants {
		wasActive := g.Active
		if err := e.GrantLibraryAccess(ctx, g); err != nil {
			return err
		}
		if !wasActive {
			if err := e.RevokeLibraryAccess(ctx, g.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// ============================================================================
// BUNDLE DISTRIBUTION
// ============================================================================

// BundleSubscriber receives signed grant bundles for one school.
type BundleSubscriber interface {
	OnBundle(ctx context.Context, schoolID string, pub ed25519.PublicKey, bundle *SignedGrantBundle) error
}

// BundleSubscriberFunc adapts a function to BundleSubscriber.
type BundleSubscriberFunc func(ctx context.Context, schoolID string, pub ed25519.PublicKey, bundle *SignedGrantBundle) error

func (f BundleSubscriberFunc) OnBundle(ctx context.Context, schoolID string, pub ed25519.PublicKey, bundle *SignedGrantBundle) error {
	return f(ctx, schoolID, pub, bundle)
}

// GrantBundleDistributor periodically (and on notify) signs a school's
// current library grants and pushes the bundle to subscribers.
type GrantBundleDistributor struct {
	store            LibraryGrantStore
	pub              ed25519.PublicKey
	priv             ed25519.PrivateKey
	rotationInterval time.Duration
	notifyCh         chan string
	stopCh           chan struct{}
	subscribers      map[string][]BundleSubscriber
	mu               sync.RWMutex
	started          bool
	wg               sync.WaitGroup
}

type GrantBundleDistributorOption func(*GrantBundleDistributor)

func WithBundleSigningKey(priv ed25519.PrivateKey) GrantBundleDistributorOption {
	return func(d *GrantBundleDistributor) {
		if priv != nil && len(priv) == ed25519.PrivateKeySize {
			d.priv = append(ed25519.PrivateKey{}, priv...)
			d.pub = priv.Public().(ed25519.PublicKey)
		}
	}
}

func WithBundleRotationInterval(interval time.Duration) GrantBundleDistributorOption {
	return func(d *GrantBundleDistributor) {
		if interval > 0 {
			d.rotationInterval = interval
		}
	}
}

func NewGrantBundleDistributor(store LibraryGrantStore, opts ...GrantBundleDistributorOption) (*GrantBundleDistributor, error) {
	if store == nil {
		return nil, fmt.Errorf("library grant store is required")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	dist := &GrantBundleDistributor{
		store:            store,
		priv:             priv,
		pub:              pub,
		rotationInterval: 24 * time.Hour,
		notifyCh:         make(chan string, 1024),
		stopCh:           make(chan struct{}),
		subscribers:      make(map[string][]BundleSubscriber),
	}
	for _, opt := range opts {
		opt(dist)
	}
	return dist, nil
}

// PublicKey returns the verification key subscribers should pin.
func (d *GrantBundleDistributor) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey{}, d.pub...)
}

// Subscribe registers a subscriber for a school's bundles.
func (d *GrantBundleDistributor) Subscribe(schoolID string, sub BundleSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[schoolID] = append(d.subscribers[schoolID], sub)
}

// Notify requests an out-of-cycle push for one school.
func (d *GrantBundleDistributor) Notify(schoolID string) {
	select {
	case d.notifyCh <- schoolID:
	default:
		// drop when the queue is full; the rotation tick catches up
	}
}

// Start launches the distribution loop; it runs until Stop or ctx cancel.
func (d *GrantBundleDistributor) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.rotationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case schoolID := <-d.notifyCh:
				if schoolID != "" {
					d.distribute(ctx, schoolID)
				}
			case <-ticker.C:
				d.distributeAll(ctx)
			}
		}
	}()
}

// Stop terminates the loop and waits for it to exit.
func (d *GrantBundleDistributor) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	close(d.stopCh)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *GrantBundleDistributor) distributeAll(ctx context.Context) {
	d.mu.RLock()
	schools := make([]string, 0, len(d.subscribers))
	for schoolID := range d.subscribers {
		schools = append(schools, schoolID)
	}
	d.mu.RUnlock()
	for _, schoolID := range schools {
		d.distribute(ctx, schoolID)
	}
}

func (d *GrantBundleDistributor) distribute(ctx context.Context, schoolID string) {
	grants, err := d.store.ListLibraryGrants(ctx, schoolID, nil, time.Now())
	if err != nil {
		return
	}
	bundle, err := SignGrantBundle(d.priv, grants)
	if err != nil {
		return
	}
	d.mu.RLock()
	subs := append([]BundleSubscriber(nil), d.subscribers[schoolID]...)
	d.mu.RUnlock()
	for _, sub := range subs {
		_ = sub.OnBundle(ctx, schoolID, d.pub, bundle)
	}
}
