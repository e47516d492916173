package internal

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func ranksByID(t *testing.T, s *Store, owner OwnerKey) map[int64]int {
	t.Helper()
	list, err := s.ListSessions(context.Background(), owner)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	out := make(map[int64]int, len(list))
	for _, sess := range list {
		out[sess.ID] = sess.Rank
	}
	return out
}

func TestSelectOrCreate(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	owner := UserOwner("1")

	first, err := store.SelectOrCreate(ctx, owner, 0)
	if err != nil {
		t.Fatalf("SelectOrCreate() error = %v", err)
	}
	if first.Rank != 1 || first.Title != "New Chat" {
		t.Errorf("SelectOrCreate() created %+v, want rank 1 titled New Chat", first)
	}

	again, err := store.SelectOrCreate(ctx, owner, 0)
	if err != nil {
		t.Fatalf("SelectOrCreate() error = %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("SelectOrCreate() created a second session %d, want reuse of %d", again.ID, first.ID)
	}

	mustAppend(t, store, first.ID, RoleHuman, "hi")
	clock.Advance(time.Second)
	second := mustSession(t, store, owner)

	got, err := store.SelectOrCreate(ctx, owner, first.ID)
	if err != nil {
		t.Fatalf("SelectOrCreate(requested) error = %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("SelectOrCreate(%d) = %d, want requested session", first.ID, got.ID)
	}

	// Someone else's id falls back to the caller's top-ranked session.
	other, err := store.SelectOrCreate(ctx, GuestOwner("tok"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if other.Title != "Guest Chat" {
		t.Errorf("guest default title = %q", other.Title)
	}
	got, err = store.SelectOrCreate(ctx, owner, other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != second.ID {
		t.Errorf("SelectOrCreate(foreign id) = %d, want top-ranked %d", got.ID, second.ID)
	}
}

func TestCreateOrReuse(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	owner := UserOwner("1")

	a, reused, err := store.CreateOrReuse(ctx, owner)
	if err != nil {
		t.Fatalf("CreateOrReuse() error = %v", err)
	}
	if reused || a.Rank != 1 || a.Title != "New Chat 1" {
		t.Errorf("first CreateOrReuse() = %+v reused=%v", a, reused)
	}

	// Most recent session is empty: reuse it, no new rows.
	b, reused, err := store.CreateOrReuse(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if !reused || b.ID != a.ID || b.Rank != 1 {
		t.Errorf("CreateOrReuse() on empty recent = %+v reused=%v, want reuse of %d", b, reused, a.ID)
	}

	// Once it has messages a new session goes above it.
	mustAppend(t, store, a.ID, RoleHuman, "hello")
	clock.Advance(time.Second)
	c, reused, err := store.CreateOrReuse(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if reused || c.ID == a.ID || c.Rank != 2 || c.Title != "New Chat 2" {
		t.Errorf("CreateOrReuse() after messages = %+v reused=%v", c, reused)
	}

	// Push the empty recent session down, then ask again: it is reused and bumped to max+1.
	if err := store.Reorder(ctx, owner, []int64{a.ID, c.ID}); err != nil {
		t.Fatal(err)
	}
	d, reused, err := store.CreateOrReuse(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if !reused || d.ID != c.ID || d.Rank != 3 {
		t.Errorf("CreateOrReuse() = %+v reused=%v, want %d bumped to rank 3", d, reused, c.ID)
	}

	list, err := store.ListSessions(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("ListSessions() len = %d, want 2", len(list))
	}
}

func TestCreateOrReuse_AlreadyTopIsNotBumped(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	owner := GuestOwner("anon")

	a := mustSession(t, store, owner)
	b, reused, err := store.CreateOrReuse(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if !reused || b.Rank != a.Rank {
		t.Errorf("CreateOrReuse() rank = %d, want unchanged %d", b.Rank, a.Rank)
	}
	if a.Title != "Guest Chat 1" {
		t.Errorf("guest numbered title = %q", a.Title)
	}
}

func TestReorder(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	owner := UserOwner("1")

	var ids []int64
	for i := 0; i < 3; i++ {
		sess := mustSession(t, store, owner)
		mustAppend(t, store, sess.ID, RoleHuman, "x")
		clock.Advance(time.Second)
		ids = append(ids, sess.ID)
	}
	a, b, c := ids[0], ids[1], ids[2]

	if err := store.Reorder(ctx, owner, []int64{c, a, b}); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}
	ranks := ranksByID(t, store, owner)
	if ranks[c] != 3 || ranks[a] != 2 || ranks[b] != 1 {
		t.Errorf("ranks = %v, want C=3 A=2 B=1", ranks)
	}

	list, err := store.ListSessions(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	got := []int64{list[0].ID, list[1].ID, list[2].ID}
	want := []int64{c, a, b}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListSessions() order = %v, want %v", got, want)
		}
	}
}

func TestReorder_ReadersSeeWholeRankings(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "chat.db"), 4)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	owner := UserOwner("1")

	var forward []int64
	for i := 0; i < 4; i++ {
		sess := mustSession(t, store, owner)
		mustAppend(t, store, sess.ID, RoleHuman, "x")
		forward = append(forward, sess.ID)
	}
	backward := []int64{forward[3], forward[2], forward[1], forward[0]}
	if err := store.Reorder(ctx, owner, forward); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}

	var (
		wg   sync.WaitGroup
		stop = make(chan struct{})
	)
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				list, err := store.ListSessions(ctx, owner)
				if err != nil {
					t.Errorf("ListSessions() error = %v", err)
					return
				}
				got := make([]int64, len(list))
				for i, sess := range list {
					got[i] = sess.ID
				}
				if !equalIDs(got, forward) && !equalIDs(got, backward) {
					t.Errorf("ListSessions() saw a mixed ranking %v", got)
					return
				}
			}
		}()
	}

	for i := 0; i < 30; i++ {
		order := forward
		if i%2 == 0 {
			order = backward
		}
		if err := store.Reorder(ctx, owner, order); err != nil {
			t.Errorf("Reorder() error = %v", err)
			break
		}
	}
	close(stop)
	wg.Wait()
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReorder_SkipsForeignAndUnparsedIDs(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	owner := UserOwner("1")
	intruder := UserOwner("2")

	mine := mustSession(t, store, owner)
	theirs := mustSession(t, store, intruder)

	// Position 0 is unparsed, position 1 is foreign; N stays 3.
	if err := store.Reorder(ctx, owner, []int64{0, theirs.ID, mine.ID}); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}
	if got := ranksByID(t, store, owner)[mine.ID]; got != 1 {
		t.Errorf("rank of own session = %d, want 1", got)
	}
	if got := ranksByID(t, store, intruder)[theirs.ID]; got != theirs.Rank {
		t.Errorf("foreign session rank changed to %d", got)
	}
}

func TestRenameAndPin(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	owner := UserOwner("1")
	sess := mustSession(t, store, owner)

	if err := store.Rename(ctx, owner, sess.ID, "  Trip planning "); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	got, err := store.GetSession(ctx, owner, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Trip planning" {
		t.Errorf("Title = %q", got.Title)
	}

	if err := store.Rename(ctx, owner, sess.ID, "   "); !IsValidation(err) {
		t.Errorf("Rename(blank) error = %v, want validation error", err)
	}
	if err := store.Rename(ctx, UserOwner("2"), sess.ID, "stolen"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rename(foreign) error = %v, want ErrNotFound", err)
	}

	pinned, err := store.TogglePin(ctx, owner, sess.ID)
	if err != nil || !pinned {
		t.Fatalf("TogglePin() = %v, %v; want true", pinned, err)
	}
	pinned, err = store.TogglePin(ctx, owner, sess.ID)
	if err != nil || pinned {
		t.Fatalf("TogglePin() = %v, %v; want false", pinned, err)
	}
	if _, err := store.TogglePin(ctx, GuestOwner("x"), sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("TogglePin(foreign) error = %v, want ErrNotFound", err)
	}
}

func TestDeleteSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	owner := UserOwner("1")
	sess := mustSession(t, store, owner)
	mustAppend(t, store, sess.ID, RoleHuman, "q")
	mustAppend(t, store, sess.ID, RoleAI, "a")

	if err := store.Delete(ctx, UserOwner("2"), sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(foreign) error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, owner, sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.GetSession(ctx, owner, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession() after delete error = %v", err)
	}
	if n, err := store.CountMessages(ctx, sess.ID); err != nil || n != 0 {
		t.Errorf("CountMessages() after delete = %d, %v; want cascade", n, err)
	}
	if err := store.Delete(ctx, owner, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestSetTitle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	owner := UserOwner("1")
	sess := mustSession(t, store, owner)

	if err := store.SetTitle(ctx, sess.ID, "Weather in Seoul"); err != nil {
		t.Fatalf("SetTitle() error = %v", err)
	}
	got, _ := store.GetSession(ctx, owner, sess.ID)
	if got.Title != "Weather in Seoul" {
		t.Errorf("Title = %q", got.Title)
	}
	if err := store.SetTitle(ctx, 9999, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetTitle(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListSessions_OwnerIsolation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	mustSession(t, store, UserOwner("1"))
	mustSession(t, store, GuestOwner("1"))

	users, err := store.ListSessions(ctx, UserOwner("1"))
	if err != nil {
		t.Fatal(err)
	}
	guests, err := store.ListSessions(ctx, GuestOwner("1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || len(guests) != 1 || users[0].ID == guests[0].ID {
		t.Errorf("user and guest keys with equal ids must not share sessions: %v %v", users, guests)
	}
	if users[0].Owner != UserOwner("1") || guests[0].Owner != GuestOwner("1") {
		t.Errorf("owners = %v, %v", users[0].Owner, guests[0].Owner)
	}
}
