package groups

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

func newRoster(t *testing.T) (*Roster, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "groups.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, nil, logx.Nop()), st
}

func TestResolveFlattensGroups(t *testing.T) {
	t.Parallel()
	r, _ := newRoster(t)
	ctx := context.Background()
	if _, err := r.Set(ctx, "Tanks", []string{"a", "@b"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Set(ctx, "heal", []string{"@b", "@c"}); err != nil {
		t.Fatal(err)
	}

	got := r.Resolve([]string{"#tanks", "@d", "HEAL", "@a", "unknown"})
	want := []string{"@a", "@b", "@d", "@c", "unknown"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
	if all := r.All(); !reflect.DeepEqual(all, []string{"@b", "@c", "@a"}) {
		t.Fatalf("All = %v", all)
	}
}

func TestRosterPersistsAndReloads(t *testing.T) {
	t.Parallel()
	r, st := newRoster(t)
	ctx := context.Background()
	if _, err := r.Set(ctx, "tanks", []string{"@a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Set(ctx, "old", []string{"@z"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete(ctx, "#old"); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}

	fresh := New(st, nil, logx.Nop())
	if err := fresh.Load(ctx); err != nil {
		t.Fatal(err)
	}
	list := fresh.List()
	if len(list) != 1 || list[0].Name != "tanks" || !reflect.DeepEqual(list[0].Members, []string{"@a"}) {
		t.Fatalf("reloaded = %+v", list)
	}
}

func TestSetRejectsBadNames(t *testing.T) {
	t.Parallel()
	r := New(nil, nil, logx.Nop())
	for _, name := range []string{"", "  ", "#", "two words"} {
		if _, err := r.Set(context.Background(), name, nil); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Set(%q) err = %v", name, err)
		}
	}
}
