package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

var ErrInvalidPath = errors.New("invalid store path")

// RoomStore is the realtime document store rooms live in.
type RoomStore interface {
	// Get returns the value at path, and false when nothing is stored there.
	Get(ctx context.Context, path string) (any, bool, error)

	// Set overwrites the value at path. A nil value deletes it.
	Set(ctx context.Context, path string, value any) error

	// Update writes every path in updates, or none of them.
	Update(ctx context.Context, updates map[string]any) error

	// Subscribe calls fn with the current value at path, then again after
	// every commit that changes it. Callbacks run in commit order and must
	// not write to the store themselves.
	Subscribe(path string, fn func(value any, ok bool)) (unsubscribe func())

	Close() error
}

// storeBackend persists whole documents, keyed by their first two path
// segments (e.g. "rooms/ABCD").
type storeBackend interface {
	Load(ctx context.Context) (map[string][]byte, error)

	// Commit writes every document in one transaction. A nil payload
	// deletes the document.
	Commit(ctx context.Context, docs map[string][]byte) error

	Close() error
}

type subscription struct {
	path   []string
	fn     func(any, bool)
	closed atomic.Bool
}

type notification struct {
	sub   *subscription
	value any
	ok    bool
}

// Store is a RoomStore over an in-memory JSON tree, optionally backed by a
// durable storeBackend.
type Store struct {
	mu      sync.Mutex
	root    map[string]any
	backend storeBackend
	subs    map[uint64]*subscription
	nextSub uint64

	// held from commit until delivery finishes, so callbacks see commits in order
	notifyMu sync.Mutex
}

func newStore(backend storeBackend) *Store {
	return &Store{
		root:    make(map[string]any),
		backend: backend,
		subs:    make(map[uint64]*subscription),
	}
}

// parseStoreFlag splits a --store value into backend kind and path.
func parseStoreFlag(value string) (string, string, error) {
	kind, path, _ := strings.Cut(value, ":")
	switch kind {
	case "", "memory":
		return "memory", "", nil
	case "bolt", "sqlite":
		if strings.TrimSpace(path) == "" {
			return "", "", fmt.Errorf("store %q requires a path (e.g. %s:/data/casuskim.db)", kind, kind)
		}
		return kind, path, nil
	default:
		return "", "", fmt.Errorf("unknown store backend %q (must be memory, bolt or sqlite)", kind)
	}
}

// openStore opens the store named by a --store value and loads every persisted document.
func openStore(ctx context.Context, value string) (*Store, error) {
	kind, path, err := parseStoreFlag(value)
	if err != nil {
		return nil, err
	}

	var backend storeBackend
	switch kind {
	case "bolt":
		backend, err = openBoltBackend(path)
	case "sqlite":
		backend, err = openSQLiteBackend(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	s := newStore(backend)
	if backend == nil {
		return s, nil
	}

	docs, err := backend.Load(ctx)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("loading store: %w", err)
	}
	for key, payload := range docs {
		segs, err := splitPath(key)
		if err != nil || len(segs) != 2 {
			_ = backend.Close()
			return nil, fmt.Errorf("loading store: bad document key %q", key)
		}
		var doc any
		if err := json.Unmarshal(payload, &doc); err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("loading store: document %q: %w", key, err)
		}
		setAt(s.root, segs, doc)
	}

	return s, nil
}

func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

func (s *Store) Get(ctx context.Context, path string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	segs, err := splitPath(path)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := getAt(s.root, segs)
	if !ok {
		return nil, false, nil
	}
	return deepCopy(v), true, nil
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	return s.Update(ctx, map[string]any{path: value})
}

func (s *Store) Update(ctx context.Context, updates map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	paths := slices.Sorted(maps.Keys(updates))
	parsed := make([][]string, len(paths))
	values := make([]any, len(paths))
	for i, p := range paths {
		segs, err := splitPath(p)
		if err != nil {
			return err
		}
		if len(segs) == 0 {
			return fmt.Errorf("%w: cannot write the root", ErrInvalidPath)
		}
		parsed[i] = segs

		v, err := normalize(updates[p])
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrStoreWrite, p, err)
		}
		values[i] = v
	}
	// Sorted order puts an ancestor directly before its descendants.
	for i := 1; i < len(parsed); i++ {
		if isPrefix(parsed[i-1], parsed[i]) {
			return fmt.Errorf("%w: %q overlaps %q", ErrInvalidPath, paths[i-1], paths[i])
		}
	}

	s.mu.Lock()

	next := cloneForWrite(s.root, parsed)
	for i, segs := range parsed {
		setAt(next, segs, values[i])
	}

	if s.backend != nil {
		docs, err := changedDocs(s.root, next, parsed)
		if err == nil {
			err = s.backend.Commit(ctx, docs)
		}
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}
	}

	prev := s.root
	s.root = next

	pending := s.pendingLocked(prev, next, parsed)

	s.notifyMu.Lock()
	s.mu.Unlock()
	deliver(pending)
	s.notifyMu.Unlock()

	return nil
}

func (s *Store) Subscribe(path string, fn func(value any, ok bool)) func() {
	segs, err := splitPath(path)
	if err != nil {
		// Nothing can ever be written at an invalid path.
		fn(nil, false)
		return func() {}
	}

	sub := &subscription{path: segs, fn: fn}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	v, ok := getAt(s.root, segs)
	first := notification{sub: sub, value: deepCopy(v), ok: ok}

	s.notifyMu.Lock()
	s.mu.Unlock()
	deliver([]notification{first})
	s.notifyMu.Unlock()

	return func() {
		sub.closed.Store(true)
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// pendingLocked collects a notification for every subscriber whose value
// differs between prev and next.
func (s *Store) pendingLocked(prev, next map[string]any, written [][]string) []notification {
	ids := slices.Sorted(maps.Keys(s.subs))

	var out []notification
	for _, id := range ids {
		sub := s.subs[id]

		touched := false
		for _, segs := range written {
			if isPrefix(sub.path, segs) || isPrefix(segs, sub.path) {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}

		before, hadBefore := getAt(prev, sub.path)
		after, ok := getAt(next, sub.path)
		if hadBefore == ok && reflect.DeepEqual(before, after) {
			continue
		}

		out = append(out, notification{sub: sub, value: deepCopy(after), ok: ok})
	}

	return out
}

func deliver(pending []notification) {
	for _, n := range pending {
		if n.sub.closed.Load() {
			continue
		}
		n.sub.fn(n.value, n.ok)
	}
}

// cloneForWrite copies root deeply enough that applying the written paths
// leaves root untouched. Documents no path reaches stay shared.
func cloneForWrite(root map[string]any, written [][]string) map[string]any {
	next := maps.Clone(root)

	collections := make(map[string]map[string]any)
	copied := make(map[string]bool)
	for _, segs := range written {
		if len(segs) < 2 {
			continue
		}

		coll, ok := collections[segs[0]]
		if !ok {
			src, isMap := next[segs[0]].(map[string]any)
			if !isMap {
				continue
			}
			coll = maps.Clone(src)
			collections[segs[0]] = coll
			next[segs[0]] = coll
		}

		key := segs[0] + "/" + segs[1]
		if len(segs) > 2 && !copied[key] {
			if doc, ok := coll[segs[1]]; ok {
				coll[segs[1]] = deepCopy(doc)
			}
			copied[key] = true
		}
	}

	return next
}

// changedDocs returns the encoded documents touched by the written paths.
func changedDocs(prev, next map[string]any, written [][]string) (map[string][]byte, error) {
	keys := make(map[string][]string)
	for _, segs := range written {
		if len(segs) >= 2 {
			keys[segs[0]+"/"+segs[1]] = segs[:2]
			continue
		}
		for _, tree := range []map[string]any{prev, next} {
			if children, ok := tree[segs[0]].(map[string]any); ok {
				for child := range children {
					keys[segs[0]+"/"+child] = []string{segs[0], child}
				}
			}
		}
	}

	docs := make(map[string][]byte, len(keys))
	for key, segs := range keys {
		v, ok := getAt(next, segs)
		if !ok {
			docs[key] = nil
			continue
		}
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", key, err)
		}
		docs[key] = payload
	}

	return docs, nil
}

func splitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}

	segs := strings.Split(path, "/")
	for _, seg := range segs {
		if seg == "" || strings.ContainsAny(seg, ".#$[]") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}

	return segs, nil
}

func isPrefix(prefix, segs []string) bool {
	return len(prefix) <= len(segs) && slices.Equal(prefix, segs[:len(prefix)])
}

func getAt(root map[string]any, segs []string) (any, bool) {
	var cur any = root
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setAt writes v at segs, creating parents as needed. A nil v deletes the
// value and prunes parents left empty.
func setAt(root map[string]any, segs []string, v any) {
	if len(segs) == 0 {
		return
	}

	if v == nil {
		deleteAt(root, segs)
		return
	}

	cur := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = v
}

func deleteAt(m map[string]any, segs []string) {
	if len(segs) == 1 {
		delete(m, segs[0])
		return
	}

	child, ok := m[segs[0]].(map[string]any)
	if !ok {
		return
	}
	deleteAt(child, segs[1:])
	if len(child) == 0 {
		delete(m, segs[0])
	}
}

// normalize round-trips v through JSON so the tree only ever holds
// map[string]any, []any, string, float64 and bool. Empty objects become nil.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	return prune(out), nil
}

func prune(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if p := prune(child); p == nil {
				delete(t, k)
			} else {
				t[k] = p
			}
		}
		if len(t) == 0 {
			return nil
		}
		return t
	case []any:
		for i := range t {
			t[i] = prune(t[i])
		}
		return t
	default:
		return v
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}
