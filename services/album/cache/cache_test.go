// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	host, port, ok := strings.Cut(mr.Addr(), ":")
	if !ok {
		t.Fatalf("unexpected miniredis addr %q", mr.Addr())
	}
	store, err := NewRedisStore(context.Background(), Config{
		Host: host,
		Port: port,
		TTL:  time.Hour,
	}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_SetGetRoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	vec := []float32{0.25, -1, 0.5}
	if err := store.Set(ctx, "img-1", vec); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok := store.Get(ctx, "img-1")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got) != len(vec) {
		t.Fatalf("len = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], vec[i])
		}
	}

	if ttl := mr.TTL("img-1"); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}
}

func TestRedisStore_GetMissAndCorrupt(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if _, ok := store.Get(ctx, "absent"); ok {
		t.Error("expected miss for absent key")
	}

	mr.Set("corrupt", "not-json")
	if _, ok := store.Get(ctx, "corrupt"); ok {
		t.Error("expected miss for undecodable value")
	}
}

func TestRedisStore_GetManyPreservesOrder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "a", []float32{1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "c", []float32{3}); err != nil {
		t.Fatalf("set: %v", err)
	}

	vecs, missing := store.GetMany(ctx, []string{"a", "b", "c", "d"})
	if len(vecs) != 4 {
		t.Fatalf("vecs len = %d, want 4", len(vecs))
	}
	if vecs[0] == nil || vecs[0][0] != 1 {
		t.Errorf("vecs[0] = %v, want [1]", vecs[0])
	}
	if vecs[1] != nil {
		t.Errorf("vecs[1] = %v, want nil", vecs[1])
	}
	if vecs[2] == nil || vecs[2][0] != 3 {
		t.Errorf("vecs[2] = %v, want [3]", vecs[2])
	}
	if vecs[3] != nil {
		t.Errorf("vecs[3] = %v, want nil", vecs[3])
	}

	want := []string{"b", "d"}
	if len(missing) != len(want) {
		t.Fatalf("missing = %v, want %v", missing, want)
	}
	for i := range want {
		if missing[i] != want[i] {
			t.Errorf("missing[%d] = %q, want %q", i, missing[i], want[i])
		}
	}
}

func TestRedisStore_BackendDownIsMiss(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "a", []float32{1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.Close()

	if _, ok := store.Get(ctx, "a"); ok {
		t.Error("expected miss when backend is down")
	}
	if err := store.Set(ctx, "b", []float32{2}); err == nil {
		t.Error("expected set error when backend is down")
	}
}
