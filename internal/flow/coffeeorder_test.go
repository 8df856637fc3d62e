package flow

import (
	"testing"

	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/store"
)

func TestCoffeeOrder_WalksTheScript(t *testing.T) {
	orders, err := store.NewOrderStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewOrderStore: %v", err)
	}
	f := NewCoffeeOrder(orders)

	steps := []struct {
		tool, arg, value, want string
	}{
		{"record_drink", "drink", "flat white", "Great choice! What size would you like?"},
		{"record_size", "size", "large", "Got it. What kind of milk?"},
		{"record_milk", "milk", "oat", "Noted. Any extras like syrups or an extra shot?"},
		{"record_extra", "extra", "vanilla syrup", "Added. Anything else?"},
		{"record_extra", "extra", "extra shot", "Added. Anything else?"},
		{"record_name", "name", "Alex Kim", "Thanks! Should I save your order?"},
	}
	for _, step := range steps {
		if got := invoke(t, f, step.tool, map[string]any{step.arg: step.value}); got != step.want {
			t.Errorf("%s reply = %q, want %q", step.tool, got, step.want)
		}
	}
	if got := invoke(t, f, "save_order", nil); got != "Saved your order as Alex_Kim!" {
		t.Fatalf("save_order reply = %q", got)
	}

	saved, err := orders.Load("Alex_Kim.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.Drink != "flat white" || saved.Size != "large" || saved.Milk != "oat" || saved.Name != "Alex Kim" {
		t.Errorf("unexpected saved order: %+v", saved)
	}
	if len(saved.Extras) != 2 || saved.Extras[0] != "vanilla syrup" || saved.Extras[1] != "extra shot" {
		t.Errorf("extras = %v", saved.Extras)
	}
}

func TestCoffeeOrder_SecondOrderSameNameGetsSuffix(t *testing.T) {
	orders, err := store.NewOrderStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewOrderStore: %v", err)
	}

	first := NewCoffeeOrder(orders)
	invoke(t, first, "record_drink", map[string]any{"drink": "espresso"})
	invoke(t, first, "record_name", map[string]any{"name": "Sam"})
	if got := invoke(t, first, "save_order", nil); got != "Saved your order as Sam!" {
		t.Fatalf("first save reply = %q", got)
	}

	second := NewCoffeeOrder(orders)
	invoke(t, second, "record_drink", map[string]any{"drink": "mocha"})
	invoke(t, second, "record_name", map[string]any{"name": "Sam"})
	if got := invoke(t, second, "save_order", nil); got != "Saved your order as Sam_2!" {
		t.Fatalf("second save reply = %q", got)
	}

	kept, err := orders.Load("Sam.json")
	if err != nil {
		t.Fatalf("Load first order: %v", err)
	}
	if kept.Drink != "espresso" {
		t.Errorf("first order drink = %q, want untouched", kept.Drink)
	}
}

func TestCoffeeOrder_EmptyExtraAsksAgain(t *testing.T) {
	orders, err := store.NewOrderStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewOrderStore: %v", err)
	}
	f := NewCoffeeOrder(orders)

	if got := invoke(t, f, "record_extra", map[string]any{"extra": "  "}); got != "What would you like to add?" {
		t.Errorf("reply = %q", got)
	}
	invoke(t, f, "record_name", map[string]any{"name": "Robin"})
	invoke(t, f, "save_order", nil)
	saved, err := orders.Load("Robin.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(saved.Extras) != 0 {
		t.Errorf("extras = %v, want none recorded", saved.Extras)
	}
}
