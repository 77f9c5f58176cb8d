package session

import (
	"context"
	"testing"
	"time"

	"github.com/knowandlove/classquiz-go/kv"
	"github.com/knowandlove/classquiz-go/models"
)

func newTestStore() (*Store, *kv.Memory) {
	backend := kv.NewMemory()
	return NewStore(backend), backend
}

func newTestSession(t *testing.T) *models.GameSession {
	t.Helper()

	sess := models.NewGameSession()
	if !sess.AddPlayer("p1", "Sam") {
		t.Fatal("adding p1 failed")
	}
	if !sess.AddPlayer("p2", "Alex") {
		t.Fatal("adding p2 failed")
	}
	return sess
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	sess := newTestSession(t)
	sess.Start()
	sess.SubmitAnswer("p1", "q1", "a3", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx, sess.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.ID != sess.ID || loaded.JoinCode != sess.JoinCode || loaded.Status != sess.Status {
		t.Fatalf("identity fields changed: %+v vs %+v", loaded, sess)
	}
	if len(loaded.Players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(loaded.Players))
	}
	if got, want := loaded.PlayerOrder, sess.PlayerOrder; len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("player order changed: %v vs %v", got, want)
	}

	// Timestamps must come back as comparable instants, not strings
	if !loaded.CreatedAt.Equal(sess.CreatedAt) {
		t.Fatalf("createdAt changed: %v vs %v", loaded.CreatedAt, sess.CreatedAt)
	}
	if !loaded.StartedAt.Equal(sess.StartedAt) {
		t.Fatalf("startedAt changed: %v vs %v", loaded.StartedAt, sess.StartedAt)
	}

	answer, ok := loaded.Players["p1"].Answers["q1"]
	if !ok {
		t.Fatal("answer lost in round trip")
	}
	if !answer.ReceivedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("answer timestamp changed: %v", answer.ReceivedAt)
	}
}

func TestResolveByJoinCodeCaseInsensitive(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	sess := newTestSession(t)
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	for _, code := range []string{sess.JoinCode, lower(sess.JoinCode)} {
		id, err := store.ResolveByJoinCode(ctx, code)
		if err != nil {
			t.Fatalf("resolve %q: %v", code, err)
		}
		if id != sess.ID {
			t.Fatalf("resolve %q: got %q, want %q", code, id, sess.ID)
		}
	}

	if err := store.Remove(ctx, sess); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, err := store.ResolveByJoinCode(ctx, sess.JoinCode); err != models.ErrSessionNotFound {
		t.Fatalf("expected not found after remove, got %v", err)
	}
}

func lower(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

func TestResolveByPlayerID(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	sess := newTestSession(t)
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	id, err := store.ResolveByPlayerID(ctx, "p2")
	if err != nil {
		t.Fatalf("resolve player: %v", err)
	}
	if id != sess.ID {
		t.Fatalf("got %q, want %q", id, sess.ID)
	}

	if _, err := store.ResolveByPlayerID(ctx, "nobody"); err != models.ErrSessionNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateRedrawsCollidingJoinCode(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	// Force the second session to draw an already-claimed code first
	codes := []string{"AB12", "AB12", "CD34"}
	draws := 0
	store.newCode = func() string {
		code := codes[draws]
		draws++
		return code
	}

	first, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	if first.JoinCode != "AB12" || second.JoinCode != "CD34" {
		t.Fatalf("expected codes AB12/CD34, got %q/%q", first.JoinCode, second.JoinCode)
	}

	// The claimed code must keep resolving to the session that owns it
	id, err := store.ResolveByJoinCode(ctx, "AB12")
	if err != nil {
		t.Fatalf("resolve AB12: %v", err)
	}
	if id != first.ID {
		t.Fatalf("code AB12 repointed: got %q, want %q", id, first.ID)
	}

	id, err = store.ResolveByJoinCode(ctx, "CD34")
	if err != nil {
		t.Fatalf("resolve CD34: %v", err)
	}
	if id != second.ID {
		t.Fatalf("code CD34 resolves to %q, want %q", id, second.ID)
	}
}

func TestCreateGivesUpWhenCodeSpaceExhausted(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	store.newCode = func() string { return "ZZ99" }

	if _, err := store.Create(ctx); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := store.Create(ctx); err == nil {
		t.Fatal("create must fail once every drawn code is taken")
	}
}

func TestRemovePlayerMapping(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	sess := newTestSession(t)
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A leaver's lookup must not outlive their membership
	sess.RemovePlayer("p2")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	if err := store.RemovePlayerMapping(ctx, "p2"); err != nil {
		t.Fatalf("remove mapping: %v", err)
	}

	if _, err := store.ResolveByPlayerID(ctx, "p2"); err != models.ErrSessionNotFound {
		t.Fatalf("departed player still resolves: %v", err)
	}

	id, err := store.ResolveByPlayerID(ctx, "p1")
	if err != nil {
		t.Fatalf("resolve p1: %v", err)
	}
	if id != sess.ID {
		t.Fatalf("remaining player lost their mapping: %q", id)
	}

	// Removing an already-missing mapping is a no-op
	if err := store.RemovePlayerMapping(ctx, "p2"); err != nil {
		t.Fatalf("second remove mapping: %v", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	sess := newTestSession(t)
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.Remove(ctx, sess); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := store.Remove(ctx, sess); err != nil {
		t.Fatalf("second remove must not error: %v", err)
	}

	if _, err := store.Load(ctx, sess.ID); err != models.ErrSessionNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdatePlayer(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	sess := newTestSession(t)
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	err := store.UpdatePlayer(ctx, sess.ID, "p1", func(p *models.Player) {
		p.Score = 42
	})
	if err != nil {
		t.Fatalf("update player: %v", err)
	}

	loaded, err := store.Load(ctx, sess.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Players["p1"].Score != 42 {
		t.Fatalf("score not persisted: %d", loaded.Players["p1"].Score)
	}

	if err := store.UpdatePlayer(ctx, sess.ID, "nobody", func(p *models.Player) {}); err != models.ErrPlayerNotFound {
		t.Fatalf("expected player not found, got %v", err)
	}
	if err := store.UpdatePlayer(ctx, "no-session", "p1", func(p *models.Player) {}); err != models.ErrSessionNotFound {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestReapExpired(t *testing.T) {
	store, backend := newTestStore()
	ctx := context.Background()

	kept := newTestSession(t)
	evicted := newTestSession(t)
	for _, sess := range []*models.GameSession{kept, evicted} {
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	// Advance the clock past the evicted session's TTL, then re-save the
	// kept one so only it survives
	backend.SetClock(func() time.Time { return time.Now().Add(3 * time.Hour) })
	if err := store.Save(ctx, kept); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	if reaped := store.ReapExpired(ctx); reaped != 1 {
		t.Fatalf("expected 1 reaped, got %d", reaped)
	}

	ids, err := store.ListActiveIDs(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(ids) != 1 || ids[0] != kept.ID {
		t.Fatalf("registry should hold only the kept session: %v", ids)
	}
}

func TestTTLShrinksTowardFinished(t *testing.T) {
	if ttlFor(models.StatusLobby) < ttlFor(models.StatusActive) {
		t.Fatal("lobby TTL must not be shorter than active TTL")
	}
	if ttlFor(models.StatusActive) <= ttlFor(models.StatusFinished) {
		t.Fatal("active TTL must exceed finished TTL")
	}
}
