package writepolicy

import (
	"context"
	"errors"
	"testing"

	"github.com/unkn0wn-root/polycache/entry"
)

type memStore struct {
	data   map[string][]byte
	puts   []string
	failOn string
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (s *memStore) Put(_ context.Context, key string, e *entry.Entry) error {
	if key == s.failOn {
		return errors.New("store down")
	}
	s.data[key] = append([]byte(nil), e.Raw...)
	s.puts = append(s.puts, key)
	return nil
}

func (s *memStore) Remove(_ context.Context, key string) error {
	delete(s.data, key)
	return nil
}

type mapTable map[string]*entry.Entry

func (m mapTable) Len() int { return len(m) }
func (m mapTable) Range(fn func(string, *entry.Entry) bool) {
	for k, e := range m {
		if !fn(k, e) {
			return
		}
	}
}

func TestWriteThroughPersistsImmediately(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	e := &entry.Entry{Raw: []byte("v1"), Dirty: true}

	if err := (WriteThrough{}).OnSet(ctx, "k", e, st); err != nil {
		t.Fatalf("OnSet: %v", err)
	}
	if e.Dirty {
		t.Fatalf("write-through must clear dirty")
	}
	if string(st.data["k"]) != "v1" {
		t.Fatalf("store=%q want v1", st.data["k"])
	}

	n, err := (WriteThrough{}).Flush(ctx, st, mapTable{"k": e})
	if err != nil || n != 0 {
		t.Fatalf("flush: n=%d err=%v, want 0,nil", n, err)
	}
}

func TestWriteThroughFailureLeavesDirty(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.failOn = "k"
	e := &entry.Entry{Raw: []byte("v")}

	if err := (WriteThrough{}).OnSet(ctx, "k", e, st); err == nil {
		t.Fatalf("expected store error")
	}
	if !e.Dirty {
		t.Fatalf("failed write must leave entry dirty")
	}

	st.failOn = ""
	n, err := (WriteThrough{}).Flush(ctx, st, mapTable{"k": e})
	if err != nil || n != 1 || e.Dirty {
		t.Fatalf("retry flush: n=%d err=%v dirty=%v", n, err, e.Dirty)
	}
}

func TestWriteBackDefersUntilFlush(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	tbl := mapTable{}
	for _, k := range []string{"c", "a", "b"} {
		e := &entry.Entry{Raw: []byte(k)}
		tbl[k] = e
		if err := (WriteBack{}).OnSet(ctx, k, e, st); err != nil {
			t.Fatalf("OnSet: %v", err)
		}
		if !e.Dirty {
			t.Fatalf("write-back must mark dirty")
		}
	}
	tbl["clean"] = &entry.Entry{Raw: []byte("x")}
	if len(st.data) != 0 {
		t.Fatalf("write-back touched the store before flush: %v", st.data)
	}

	n, err := (WriteBack{}).Flush(ctx, st, tbl)
	if err != nil || n != 3 {
		t.Fatalf("flush: n=%d err=%v want 3,nil", n, err)
	}
	want := []string{"a", "b", "c"}
	for i, k := range want {
		if st.puts[i] != k {
			t.Fatalf("flush order=%v want %v", st.puts, want)
		}
	}
	for k, e := range tbl {
		if e.Dirty {
			t.Fatalf("%q still dirty after flush", k)
		}
	}
}

func TestWriteBackPartialFlush(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.failOn = "b"
	tbl := mapTable{
		"a": {Raw: []byte("a"), Dirty: true},
		"b": {Raw: []byte("b"), Dirty: true},
		"c": {Raw: []byte("c"), Dirty: true},
	}
	n, err := (WriteBack{}).Flush(ctx, st, tbl)
	if err == nil || n != 1 {
		t.Fatalf("partial flush: n=%d err=%v", n, err)
	}
	if tbl["a"].Dirty || !tbl["b"].Dirty || !tbl["c"].Dirty {
		t.Fatalf("dirty flags after partial flush: a=%v b=%v c=%v",
			tbl["a"].Dirty, tbl["b"].Dirty, tbl["c"].Dirty)
	}
}

func TestDeleteRemovesImmediately(t *testing.T) {
	ctx := context.Background()
	for _, p := range []Policy{WriteThrough{}, WriteBack{}} {
		st := newMemStore()
		st.data["k"] = []byte("old")
		if err := p.OnDelete(ctx, "k", st); err != nil {
			t.Fatalf("%s OnDelete: %v", p.Name(), err)
		}
		if _, ok := st.data["k"]; ok {
			t.Fatalf("%s: key still in store", p.Name())
		}
	}
}

func TestNewFactory(t *testing.T) {
	p, err := New(KindWriteBack)
	if err != nil || !p.Deferred() {
		t.Fatalf("New(write_back)=%v,%v", p, err)
	}
	p, err = New(KindWriteThrough)
	if err != nil || p.Deferred() {
		t.Fatalf("New(write_through)=%v,%v", p, err)
	}
	if _, err := New("write_around"); !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("unknown kind: err=%v", err)
	}
}
