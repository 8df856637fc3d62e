package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func newTestOrderStore(t *testing.T) *OrderStore {
	t.Helper()
	s, err := NewOrderStore(t.TempDir())
	if err != nil {
		t.Fatalf("new order store: %v", err)
	}
	return s
}

func TestOrderStore_FilenameFromSanitizedName(t *testing.T) {
	s := newTestOrderStore(t)
	o := NewCoffeeOrder()
	o.Drink = "latte"
	o.Name = "Mary Jane"
	name, err := s.Save(o)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if name != "Mary_Jane.json" {
		t.Fatalf("filename = %q, want Mary_Jane.json", name)
	}
}

func TestOrderStore_SameNameGetsSuffix(t *testing.T) {
	s := newTestOrderStore(t)
	first := NewCoffeeOrder()
	first.Drink = "latte"
	first.Name = "sam"
	second := NewCoffeeOrder()
	second.Drink = "mocha"
	second.Name = "sam"
	if _, err := s.Save(first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	name, err := s.Save(second)
	if err != nil {
		t.Fatalf("save second: %v", err)
	}
	if name != "sam_2.json" {
		t.Fatalf("second filename = %q, want sam_2.json", name)
	}
	got, err := s.Load("sam.json")
	if err != nil {
		t.Fatalf("load first: %v", err)
	}
	if got.Drink != "latte" {
		t.Fatalf("first order was overwritten: %+v", got)
	}
}

func TestOrderStore_EmptyNameFallsBack(t *testing.T) {
	s := newTestOrderStore(t)
	o := NewCoffeeOrder()
	o.Drink = "espresso"
	name, err := s.Save(o)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if name != "guest.json" {
		t.Fatalf("filename = %q, want guest.json", name)
	}
}

func TestOrderStore_UnsetFieldsSerializeEmpty(t *testing.T) {
	s := newTestOrderStore(t)
	o := NewCoffeeOrder()
	o.Name = "kim"
	name, err := s.Save(o)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode saved file: %v", err)
	}
	if len(doc) != 5 {
		t.Fatalf("expected exactly 5 fields, got %d: %v", len(doc), doc)
	}
	for _, field := range []string{"drink", "size", "milk", "extras", "name"} {
		if _, ok := doc[field]; !ok {
			t.Fatalf("field %q missing from saved document", field)
		}
	}
	if doc["drink"] != "" || doc["size"] != "" || doc["milk"] != "" {
		t.Fatalf("unset fields should be empty strings: %v", doc)
	}
	if _, ok := doc["extras"].([]any); !ok {
		t.Fatalf("extras should serialize as a list, got %T", doc["extras"])
	}
}
