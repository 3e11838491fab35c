package tuya

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/graylogic-tuya/internal/credential"
	"github.com/nerrad567/graylogic-tuya/internal/infrastructure/database"
	_ "github.com/nerrad567/graylogic-tuya/migrations"
)

func newTestProvider(t *testing.T) (*StoreProvider, credential.Store) {
	t.Helper()
	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	store := credential.NewSQLiteStore(db.DB)
	p, err := NewStoreProvider(StoreProviderConfig{
		Store:    store,
		ConfigID: "tuya-default",
		Driver:   "socket",
		APIURL:   "https://apigw.iotbing.com",
	})
	if err != nil {
		t.Fatalf("NewStoreProvider() error = %v", err)
	}
	return p, store
}

func TestNewStoreProvider_Validation(t *testing.T) {
	if _, err := NewStoreProvider(StoreProviderConfig{ConfigID: "x"}); err == nil {
		t.Error("expected error without store")
	}
}

func TestStoreProvider_FirstSavedEmpty(t *testing.T) {
	p, _ := newTestProvider(t)
	if _, err := p.FirstSaved(context.Background()); !errors.Is(err, ErrNotLinked) {
		t.Errorf("error = %v, want ErrNotLinked", err)
	}
}

func TestStoreProvider_SaveAndFirstSaved(t *testing.T) {
	p, store := newTestProvider(t)
	ctx := context.Background()

	tok := &Token{
		AccessToken: "at",
		ExpireTime:  7200,
		ReceivedAt:  time.Now().UTC().Truncate(time.Second),
		UID:         "u1",
		Endpoint:    "https://apigw.tuyaeu.com",
	}
	c := p.Create("s1", tok)
	if c.ConfigID != "tuya-default" || c.SessionID != "s1" {
		t.Errorf("client = %+v", c)
	}
	if cloud, ok := c.AccountClient.(*CloudClient); !ok || cloud.Endpoint() != "https://apigw.tuyaeu.com" {
		t.Errorf("AccountClient = %#v", c.AccountClient)
	}

	if err := p.Save(ctx, c); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	cred, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cred.Provider != ProviderName || cred.Driver != "socket" || cred.UID != "u1" {
		t.Errorf("credential = %+v", cred)
	}
	if cred.ExpiresAt == nil || !cred.ExpiresAt.Equal(tok.Expiry()) {
		t.Errorf("ExpiresAt = %v, want %v", cred.ExpiresAt, tok.Expiry())
	}
	var stored Token
	if err := json.Unmarshal(cred.Token, &stored); err != nil || stored.AccessToken != "at" {
		t.Errorf("stored token = %+v, err %v", stored, err)
	}

	first, err := p.FirstSaved(ctx)
	if err != nil {
		t.Fatalf("FirstSaved() error = %v", err)
	}
	if first.SessionID != "s1" || first.Token.AccessToken != "at" {
		t.Errorf("FirstSaved() = %+v", first)
	}
}

func TestStoreProvider_RepairReplacesStaleClient(t *testing.T) {
	p, store := newTestProvider(t)
	ctx := context.Background()

	expired := &Token{AccessToken: "expired", ExpireTime: 60, ReceivedAt: time.Now().Add(-time.Hour)}
	if err := p.Save(ctx, p.Create("s-old", expired)); err != nil {
		t.Fatal(err)
	}

	// An expired client does not count as linked.
	if _, err := p.FirstSaved(ctx); !errors.Is(err, ErrNotLinked) {
		t.Errorf("FirstSaved() with only an expired client error = %v, want ErrNotLinked", err)
	}

	fresh := &Token{AccessToken: "fresh", ExpireTime: 7200, ReceivedAt: time.Now()}
	if err := p.Save(ctx, p.Create("s-new", fresh)); err != nil {
		t.Fatal(err)
	}

	got, err := p.FirstSaved(ctx)
	if err != nil {
		t.Fatalf("FirstSaved() error = %v", err)
	}
	if got.SessionID != "s-new" || got.Token.AccessToken != "fresh" {
		t.Errorf("FirstSaved() = %s/%s, want the re-paired client", got.SessionID, got.Token.AccessToken)
	}
	if _, err := store.Get(ctx, "s-old"); !errors.Is(err, credential.ErrNotFound) {
		t.Errorf("stale client still stored: err = %v", err)
	}
}

func TestStoreProvider_SaveKeepsOtherConfigs(t *testing.T) {
	p, store := newTestProvider(t)
	ctx := context.Background()

	other := &credential.Credential{
		ID:       "other-cfg",
		Provider: ProviderName,
		ConfigID: "another",
		Token:    json.RawMessage(`{"access_token":"x"}`),
	}
	if err := store.Save(ctx, other); err != nil {
		t.Fatal(err)
	}
	if err := p.Save(ctx, p.Create("s1", &Token{AccessToken: "at"})); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "other-cfg"); err != nil {
		t.Errorf("client of another config removed: %v", err)
	}
}

func TestStoreProvider_Unlink(t *testing.T) {
	p, store := newTestProvider(t)
	ctx := context.Background()

	if err := p.Unlink(ctx, "missing"); !errors.Is(err, ErrNotLinked) {
		t.Errorf("Unlink(missing) error = %v, want ErrNotLinked", err)
	}

	foreign := &credential.Credential{
		ID:       "foreign",
		Provider: "other",
		ConfigID: "tuya-default",
		Token:    json.RawMessage(`{}`),
	}
	if err := store.Save(ctx, foreign); err != nil {
		t.Fatal(err)
	}
	if err := p.Unlink(ctx, "foreign"); !errors.Is(err, ErrNotLinked) {
		t.Errorf("Unlink(foreign) error = %v, want ErrNotLinked", err)
	}
	if _, err := store.Get(ctx, "foreign"); err != nil {
		t.Errorf("foreign client deleted: %v", err)
	}

	if err := p.Save(ctx, p.Create("s1", &Token{AccessToken: "at"})); err != nil {
		t.Fatal(err)
	}
	if err := p.Unlink(ctx, "s1"); err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}
	if _, err := p.FirstSaved(ctx); !errors.Is(err, ErrNotLinked) {
		t.Errorf("FirstSaved() after Unlink error = %v, want ErrNotLinked", err)
	}
}
