package sync

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEngine_CreateDispatch(t *testing.T) {
	engine := NewEngine()
	store := newMockStore("patient")
	engine.Register(store)

	id, err := engine.Apply(context.Background(), Change{
		EntityType: "patient",
		EntityID:   "local-1",
		Operation:  OpCreate,
		Data:       map[string]interface{}{"firstName": "Amina"},
	}, nil, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a server entity id")
	}
	if _, ok := store.entities[id]; !ok {
		t.Error("entity not created in store")
	}
}

func TestEngine_UnsupportedEntityType(t *testing.T) {
	engine := NewEngine()

	_, err := engine.Apply(context.Background(), Change{
		EntityType: "lab_result", EntityID: "x", Operation: OpCreate,
	}, nil, "user-1")
	if !errors.Is(err, ErrUnsupportedEntityType) {
		t.Errorf("expected ErrUnsupportedEntityType, got %v", err)
	}
}

func TestEngine_UnsupportedOperation(t *testing.T) {
	engine := NewEngine()
	engine.Register(newMockStore("patient"))

	_, err := engine.Apply(context.Background(), Change{
		EntityType: "patient", EntityID: "x", Operation: "upsert",
	}, nil, "user-1")
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestEngine_UpdateDetectsConflict(t *testing.T) {
	engine := NewEngine()
	store := newMockStore("patient")
	engine.Register(store)

	store.entities["p1"] = &storedEntity{
		data:      map[string]interface{}{"firstName": "Amina"},
		updatedAt: time.Now(),
	}
	// Device last saw the record before the server write.
	baseline := time.Now().Add(-time.Hour)

	_, err := engine.Apply(context.Background(), Change{
		EntityType: "patient", EntityID: "p1", Operation: OpUpdate,
		Data: map[string]interface{}{"firstName": "Aminata"},
	}, &baseline, "user-1")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if store.entities["p1"].data["firstName"] != "Amina" {
		t.Error("conflicting update must not modify the server copy")
	}
}

func TestEngine_UpdateBaseUpdatedAtOverridesBaseline(t *testing.T) {
	engine := NewEngine()
	store := newMockStore("patient")
	engine.Register(store)

	serverTime := time.Now().Add(-time.Minute)
	store.entities["p1"] = &storedEntity{
		data:      map[string]interface{}{"firstName": "Amina"},
		updatedAt: serverTime,
	}

	// Old device baseline would flag a conflict, but the change carries the
	// exact version it was based on.
	baseline := serverTime.Add(-time.Hour)
	base := serverTime

	_, err := engine.Apply(context.Background(), Change{
		EntityType: "patient", EntityID: "p1", Operation: OpUpdate,
		Data:          map[string]interface{}{"firstName": "Aminata"},
		BaseUpdatedAt: &base,
	}, &baseline, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.entities["p1"].data["firstName"] != "Aminata" {
		t.Error("update not applied")
	}
}

func TestEngine_UpdateMissingEntityCreatesIt(t *testing.T) {
	engine := NewEngine()
	store := newMockStore("patient")
	engine.Register(store)

	id, err := engine.Apply(context.Background(), Change{
		EntityType: "patient", EntityID: "client-5", Operation: OpUpdate,
		Data: map[string]interface{}{"firstName": "Moussa"},
	}, nil, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "client-5" {
		t.Errorf("expected client id preserved, got %q", id)
	}
	if _, ok := store.entities["client-5"]; !ok {
		t.Error("missing entity should be created under the client id")
	}
}

func TestEngine_UpdateResurrectsDeletedEntity(t *testing.T) {
	engine := NewEngine()
	store := newMockStore("patient")
	engine.Register(store)

	store.entities["p1"] = &storedEntity{
		data:      map[string]interface{}{"firstName": "Amina"},
		updatedAt: time.Now().Add(-time.Minute),
		deleted:   true,
	}

	id, err := engine.Apply(context.Background(), Change{
		EntityType: "patient", EntityID: "p1", Operation: OpUpdate,
		Data: map[string]interface{}{"firstName": "Aminata"},
	}, nil, "user-1")
	if err != nil {
		t.Fatalf("update of a deleted entity must land, got %v", err)
	}
	if id != "p1" {
		t.Errorf("expected client id preserved, got %q", id)
	}
	e := store.entities["p1"]
	if e.deleted {
		t.Error("entity should be resurrected")
	}
	if e.data["firstName"] != "Aminata" {
		t.Errorf("resurrected entity carries stale data: %v", e.data)
	}
}

func TestEngine_DeleteIsIdempotent(t *testing.T) {
	engine := NewEngine()
	store := newMockStore("patient")
	engine.Register(store)

	for i := 0; i < 2; i++ {
		if _, err := engine.Apply(context.Background(), Change{
			EntityType: "patient", EntityID: "gone", Operation: OpDelete,
		}, nil, "user-1"); err != nil {
			t.Fatalf("delete attempt %d: %v", i+1, err)
		}
	}
}

func TestEngine_DeltaIncludesDeletes(t *testing.T) {
	engine := NewEngine()
	store := newMockStore("patient")
	engine.Register(store)

	since := time.Now().Add(-time.Hour)
	store.entities["alive"] = &storedEntity{
		data:      map[string]interface{}{"firstName": "Amina"},
		updatedAt: time.Now(),
	}
	store.entities["removed"] = &storedEntity{updatedAt: time.Now(), deleted: true}
	store.entities["old"] = &storedEntity{
		data:      map[string]interface{}{"firstName": "Sekou"},
		updatedAt: since.Add(-time.Hour),
	}

	delta, err := engine.Delta(context.Background(), since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta) != 2 {
		t.Fatalf("expected 2 delta entries, got %d", len(delta))
	}
	byID := make(map[string]DeltaEntry)
	for _, entry := range delta {
		byID[entry.EntityID] = entry
	}
	if byID["alive"].Operation != OpUpdate || byID["alive"].Data == nil {
		t.Errorf("live row should be an update with data: %+v", byID["alive"])
	}
	if byID["removed"].Operation != OpDelete || byID["removed"].Data != nil {
		t.Errorf("deleted row should be a delete with no data: %+v", byID["removed"])
	}
}
