package cert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/org/certledger/internal/eventlog"
	"github.com/org/certledger/internal/fingerprint"
	"github.com/org/certledger/internal/registry"
	"github.com/org/certledger/internal/storage"
	"github.com/org/certledger/pkg/models"
)

const (
	rootAddr  = "0x0000000000000000000000000000000000000001"
	issuer    = "0x00000000000000000000000000000000000000aa"
	recipient = "0x00000000000000000000000000000000000000bb"
	stranger  = "0x00000000000000000000000000000000000000cc"
)

func newTestEngine(t *testing.T) (*Engine, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	ctx := context.Background()
	if err := store.InitLedger(ctx, rootAddr, time.Now().UTC()); err != nil {
		t.Fatalf("init ledger: %v", err)
	}
	events := eventlog.NewRecorder(store)
	reg := registry.New(store, events)
	for _, f := range []models.Family{models.FamilyBroadcast, models.FamilyPublic, models.FamilyPrivate} {
		if _, err := reg.AddFactoryVersion(ctx, rootAddr, f, "factory-"+string(f)+"-v1"); err != nil {
			t.Fatalf("registering factory for %s: %v", f, err)
		}
	}
	return NewEngine(store, reg, events), store
}

func validInput(link string) AddVersionInput {
	return AddVersionInput{
		JSONHash:     fingerprint.Sum([]byte("json")),
		SoftCopyHash: fingerprint.Sum([]byte("pdf")),
		StorageLink:  link,
		StartDate:    1700000000,
		EndDate:      1700000000 + 31536000,
	}
}

func TestBroadcastCreateAndVersion(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	cert, err := e.Create(ctx, issuer, models.FamilyBroadcast, "T1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cert.Owner != issuer || cert.Title != "T1" {
		t.Errorf("unexpected certificate: %+v", cert)
	}

	rec, err := e.AddVersion(ctx, issuer, cert.ID, validInput("ptr1"))
	if err != nil {
		t.Fatalf("add version: %v", err)
	}
	if rec.Version != 1 {
		t.Errorf("expected version 1, got %d", rec.Version)
	}

	cur, err := e.GetCurrentVersion(ctx, cert.ID)
	if err != nil {
		t.Fatalf("get current version: %v", err)
	}
	if cur.Version != 1 || cur.StorageLink != "ptr1" {
		t.Errorf("expected version 1 with storage link ptr1, got v%d link %q", cur.Version, cur.StorageLink)
	}
}

func TestMonotonicVersioning(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	cert, err := e.Create(ctx, issuer, models.FamilyBroadcast, "mono", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	const n = 5
	for i := 1; i <= n; i++ {
		rec, err := e.AddVersion(ctx, issuer, cert.ID, validInput("ptr"))
		if err != nil {
			t.Fatalf("add version %d: %v", i, err)
		}
		if rec.Version != i {
			t.Errorf("expected version %d, got %d", i, rec.Version)
		}
	}
	versions, err := e.ListVersions(ctx, cert.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != n {
		t.Errorf("expected %d versions, got %d", n, len(versions))
	}
	cur, err := e.GetCurrentVersion(ctx, cert.ID)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if cur.Version != n {
		t.Errorf("current version should be newest (%d), got %d", n, cur.Version)
	}
	got, err := e.Get(ctx, cert.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ActiveVersion != n {
		t.Errorf("active version pointer should be %d, got %d", n, got.ActiveVersion)
	}
}

func TestCreateValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		family models.Family
		title  string
		code   string
		want   error
	}{
		{"bad family", models.Family("internal"), "t", "", models.ErrUnknownFamily},
		{"missing title", models.FamilyBroadcast, "", "", models.ErrInvalidInput},
		{"public needs code", models.FamilyPublic, "t", "", models.ErrInvalidInput},
		{"private needs code", models.FamilyPrivate, "t", "", models.ErrInvalidInput},
		{"broadcast takes no code", models.FamilyBroadcast, "t", "abc", models.ErrInvalidInput},
	}
	for _, tc := range cases {
		_, err := e.Create(ctx, issuer, tc.family, tc.title, tc.code)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestAddVersionAuthorization(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	cert, _ := e.Create(ctx, issuer, models.FamilyBroadcast, "auth", "")
	if _, err := e.AddVersion(ctx, stranger, cert.ID, validInput("ptr")); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("non-owner add version: got %v, want ErrUnauthorized", err)
	}
	// No partial record may exist after the rejected call.
	if versions, _ := e.ListVersions(ctx, cert.ID); len(versions) != 0 {
		t.Errorf("expected no versions after rejected call, got %d", len(versions))
	}
	if _, err := e.GetCurrentVersion(ctx, cert.ID); !errors.Is(err, models.ErrNoVersions) {
		t.Errorf("expected ErrNoVersions, got %v", err)
	}
}

func TestAddVersionValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	pub, _ := e.Create(ctx, issuer, models.FamilyPublic, "pub", "abc")
	priv, _ := e.Create(ctx, issuer, models.FamilyPrivate, "priv", "abc")

	in := validInput("")
	if _, err := e.AddVersion(ctx, issuer, pub.ID, in); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("public without storage link: got %v, want ErrInvalidInput", err)
	}
	in = validInput("ptr")
	if _, err := e.AddVersion(ctx, issuer, priv.ID, in); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("private with storage link: got %v, want ErrInvalidInput", err)
	}
	in = validInput("ptr")
	in.JSONHash = "nothex"
	if _, err := e.AddVersion(ctx, issuer, pub.ID, in); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("malformed hash: got %v, want ErrInvalidInput", err)
	}
	in = validInput("ptr")
	in.SoftCopyHash = ""
	if _, err := e.AddVersion(ctx, issuer, pub.ID, in); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("empty hash: got %v, want ErrInvalidInput", err)
	}
}

func TestOneShotActivation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	cert, _ := e.Create(ctx, issuer, models.FamilyPublic, "B", "abc")
	if _, err := e.AddVersion(ctx, issuer, cert.ID, validInput("ptr")); err != nil {
		t.Fatalf("add version: %v", err)
	}

	if _, err := e.Activate(ctx, recipient, cert.ID, "wrong"); !errors.Is(err, models.ErrInvalidActivationCode) {
		t.Errorf("wrong code: got %v, want ErrInvalidActivationCode", err)
	}

	activated, err := e.Activate(ctx, recipient, cert.ID, "abc")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if activated.User != recipient {
		t.Errorf("expected user %s, got %s", recipient, activated.User)
	}

	// Second activation fails regardless of code correctness.
	if _, err := e.Activate(ctx, stranger, cert.ID, "abc"); !errors.Is(err, models.ErrAlreadyActivated) {
		t.Errorf("second activate, right code: got %v, want ErrAlreadyActivated", err)
	}
	if _, err := e.Activate(ctx, stranger, cert.ID, "wrong"); !errors.Is(err, models.ErrAlreadyActivated) {
		t.Errorf("second activate, wrong code: got %v, want ErrAlreadyActivated", err)
	}

	got, _ := e.Get(ctx, cert.ID)
	if got.User != recipient {
		t.Errorf("user should remain the first activator, got %s", got.User)
	}

	// The active record was stamped with the user.
	cur, _ := e.GetCurrentVersion(ctx, cert.ID)
	if cur.User != recipient {
		t.Errorf("active record user should be %s, got %s", recipient, cur.User)
	}
}

func TestActivateRejectsOwnerAndBroadcast(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	pub, _ := e.Create(ctx, issuer, models.FamilyPublic, "own", "abc")
	if _, err := e.Activate(ctx, issuer, pub.ID, "abc"); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("owner activating own certificate: got %v, want ErrUnauthorized", err)
	}

	bc, _ := e.Create(ctx, issuer, models.FamilyBroadcast, "bc", "")
	if _, err := e.Activate(ctx, recipient, bc.ID, "abc"); !errors.Is(err, models.ErrNotSupported) {
		t.Errorf("activating broadcast: got %v, want ErrNotSupported", err)
	}
}

func TestActivationPropagation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	cert, _ := e.Create(ctx, issuer, models.FamilyPublic, "prop", "abc")
	e.AddVersion(ctx, issuer, cert.ID, validInput("ptr1")) //nolint:errcheck
	if _, err := e.Activate(ctx, recipient, cert.ID, "abc"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// A version added after activation inherits the bound user.
	rec, err := e.AddVersion(ctx, issuer, cert.ID, validInput("ptr2"))
	if err != nil {
		t.Fatalf("add version after activation: %v", err)
	}
	if rec.User != recipient {
		t.Errorf("new version should inherit user %s, got %q", recipient, rec.User)
	}
}

func TestPrivateDataLinks(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	cert, _ := e.Create(ctx, issuer, models.FamilyPrivate, "C", "abc")
	rec, err := e.AddVersion(ctx, issuer, cert.ID, validInput(""))
	if err != nil {
		t.Fatalf("add version: %v", err)
	}

	// Before activation nobody may write links.
	if err := e.UpdateDataLinks(ctx, recipient, rec.ID, "a", "b"); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("pre-activation link write: got %v, want ErrUnauthorized", err)
	}

	if _, err := e.Activate(ctx, recipient, cert.ID, "abc"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := e.UpdateDataLinks(ctx, recipient, rec.ID, "linkA", "linkB"); err != nil {
		t.Fatalf("update data links: %v", err)
	}
	detail, _ := e.GetDetail(ctx, rec.ID)
	if detail.JSONLink != "linkA" || detail.SoftCopyLink != "linkB" {
		t.Errorf("unexpected links: %q %q", detail.JSONLink, detail.SoftCopyLink)
	}

	// Overwrite wins unconditionally; only the latest values remain.
	if err := e.UpdateDataLinks(ctx, recipient, rec.ID, "linkC", "linkD"); err != nil {
		t.Fatalf("second update: %v", err)
	}
	detail, _ = e.GetDetail(ctx, rec.ID)
	if detail.JSONLink != "linkC" || detail.SoftCopyLink != "linkD" {
		t.Errorf("expected latest links, got %q %q", detail.JSONLink, detail.SoftCopyLink)
	}

	// The owner is not the user and may not write links.
	if err := e.UpdateDataLinks(ctx, issuer, rec.ID, "x", "y"); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("owner link write: got %v, want ErrUnauthorized", err)
	}

	// Broadcast/public records have no private links at all.
	bc, _ := e.Create(ctx, issuer, models.FamilyBroadcast, "bc", "")
	bcRec, _ := e.AddVersion(ctx, issuer, bc.ID, validInput("ptr"))
	if err := e.UpdateDataLinks(ctx, recipient, bcRec.ID, "a", "b"); !errors.Is(err, models.ErrNotSupported) {
		t.Errorf("broadcast link write: got %v, want ErrNotSupported", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	cert, _ := e.Create(ctx, issuer, models.FamilyBroadcast, "st", "")
	rec, _ := e.AddVersion(ctx, issuer, cert.ID, validInput("ptr"))

	if err := e.UpdateStatus(ctx, stranger, rec.ID, models.StatusDisabled); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("non-owner status update: got %v, want ErrUnauthorized", err)
	}
	if err := e.UpdateStatus(ctx, issuer, rec.ID, models.Status("archived")); !errors.Is(err, models.ErrInvalidStatus) {
		t.Errorf("undefined status: got %v, want ErrInvalidStatus", err)
	}
	if err := e.UpdateStatus(ctx, issuer, rec.ID, models.StatusDisabled); err != nil {
		t.Fatalf("disable: %v", err)
	}
	detail, _ := e.GetDetail(ctx, rec.ID)
	if detail.Status != models.StatusDisabled {
		t.Errorf("expected disabled, got %s", detail.Status)
	}
	// Re-setting the same status is idempotent.
	if err := e.UpdateStatus(ctx, issuer, rec.ID, models.StatusDisabled); err != nil {
		t.Errorf("idempotent disable failed: %v", err)
	}
}

func TestVersionIndexBounds(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	cert, _ := e.Create(ctx, issuer, models.FamilyBroadcast, "idx", "")
	e.AddVersion(ctx, issuer, cert.ID, validInput("ptr")) //nolint:errcheck

	if _, err := e.GetVersionByNumber(ctx, cert.ID, 0); !errors.Is(err, models.ErrInvalidVersionNumber) {
		t.Errorf("version 0: got %v, want ErrInvalidVersionNumber", err)
	}
	if _, err := e.GetVersionByNumber(ctx, cert.ID, 2); !errors.Is(err, models.ErrInvalidVersionNumber) {
		t.Errorf("version len+1: got %v, want ErrInvalidVersionNumber", err)
	}
	if _, err := e.GetVersionByNumber(ctx, cert.ID, 1); err != nil {
		t.Errorf("version 1: %v", err)
	}
}

func TestFactoryGetByIndex(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	a, _ := e.Create(ctx, issuer, models.FamilyBroadcast, "first", "")
	b, _ := e.Create(ctx, issuer, models.FamilyBroadcast, "second", "")

	got, err := e.GetByIndex(ctx, models.FamilyBroadcast, 0)
	if err != nil {
		t.Fatalf("get by index 0: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("index 0 should be first created, got %s", got.Title)
	}
	got, _ = e.GetByIndex(ctx, models.FamilyBroadcast, 1)
	if got.ID != b.ID {
		t.Errorf("index 1 should be second created, got %s", got.Title)
	}
	if _, err := e.GetByIndex(ctx, models.FamilyBroadcast, 2); !errors.Is(err, models.ErrIndexOutOfRange) {
		t.Errorf("out of range index: got %v, want ErrIndexOutOfRange", err)
	}
	if _, err := e.GetByIndex(ctx, models.FamilyBroadcast, -1); !errors.Is(err, models.ErrIndexOutOfRange) {
		t.Errorf("negative index: got %v, want ErrIndexOutOfRange", err)
	}
}

func TestEventTrail(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	cert, _ := e.Create(ctx, issuer, models.FamilyPublic, "ev", "abc")
	rec, _ := e.AddVersion(ctx, issuer, cert.ID, validInput("ptr"))
	e.Activate(ctx, recipient, cert.ID, "abc")            //nolint:errcheck
	e.UpdateStatus(ctx, issuer, rec.ID, models.StatusDisabled) //nolint:errcheck

	events, err := store.QueryEvents(ctx, storage.EventFilter{})
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	var names []string
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	want := []string{
		models.EventFactoryVersionAdded, // broadcast
		models.EventFactoryVersionAdded, // public
		models.EventFactoryVersionAdded, // private
		models.EventCertificateCreated,
		models.EventVersionAdded,
		models.EventActivated,
		models.EventStatusUpdated,
	}
	if len(names) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(names), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, names[i], want[i])
		}
	}
	// Sequence numbers are strictly increasing.
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Errorf("event order broken at %d: %d then %d", i, events[i-1].Seq, events[i].Seq)
		}
	}
}
