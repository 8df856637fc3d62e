package flow

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/agent"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/store"
)

const coffeeOrderInstructions = `You are a friendly barista taking a coffee order.

Conversation flow:
1. Ask what the customer would like to drink.
2. Use record_drink.
3. Ask for size -> milk -> extras -> name.
4. When the customer confirms, call save_order.

Always end with a question so the customer continues speaking.
Keep responses short and friendly.`

// NewCoffeeOrder builds the coffee order flow around a fresh order record.
func NewCoffeeOrder(orders *store.OrderStore) *Flow {
	st := &coffeeOrderState{
		store:      orders,
		order:      store.NewCoffeeOrder(),
		waitingFor: "drink",
	}
	return &Flow{
		Name:         "coffee-order",
		Greeting:     "Hi there! What can I get started for you today?",
		Instructions: coffeeOrderInstructions,
		Tools: []agent.Tool{
			{
				Name:        "record_drink",
				Description: "Record which drink the customer wants.",
				Parameters: objectSchema([]string{"drink"}, map[string]any{
					"drink": stringParam("The drink, e.g. latte, cappuccino, americano."),
				}),
				Handler: st.recordDrink,
			},
			{
				Name:        "record_size",
				Description: "Record the drink size.",
				Parameters: objectSchema([]string{"size"}, map[string]any{
					"size": stringParam("The size, e.g. small, medium, large."),
				}),
				Handler: st.recordSize,
			},
			{
				Name:        "record_milk",
				Description: "Record the kind of milk.",
				Parameters: objectSchema([]string{"milk"}, map[string]any{
					"milk": stringParam("The milk choice, e.g. whole, oat, none."),
				}),
				Handler: st.recordMilk,
			},
			{
				Name:        "record_extra",
				Description: "Record one extra, such as a syrup or an additional shot. Call once per extra.",
				Parameters: objectSchema([]string{"extra"}, map[string]any{
					"extra": stringParam("The extra to add to the order."),
				}),
				Handler: st.recordExtra,
			},
			{
				Name:        "record_name",
				Description: "Record the name to put on the order.",
				Parameters: objectSchema([]string{"name"}, map[string]any{
					"name": stringParam("The customer's name."),
				}),
				Handler: st.recordName,
			},
			{
				Name:        "save_order",
				Description: "Save the completed order. Call when the customer confirms.",
				Parameters:  objectSchema(nil, map[string]any{}),
				Handler:     st.saveOrder,
			},
		},
	}
}

type coffeeOrderState struct {
	store      *store.OrderStore
	order      *store.CoffeeOrder
	waitingFor string
}

func (s *coffeeOrderState) recordDrink(_ context.Context, args map[string]any) (string, error) {
	s.order.Drink = stringArg(args, "drink")
	s.waitingFor = "size"
	return "Great choice! What size would you like?", nil
}

func (s *coffeeOrderState) recordSize(_ context.Context, args map[string]any) (string, error) {
	s.order.Size = stringArg(args, "size")
	s.waitingFor = "milk"
	return "Got it. What kind of milk?", nil
}

func (s *coffeeOrderState) recordMilk(_ context.Context, args map[string]any) (string, error) {
	s.order.Milk = stringArg(args, "milk")
	s.waitingFor = "extras"
	return "Noted. Any extras like syrups or an extra shot?", nil
}

func (s *coffeeOrderState) recordExtra(_ context.Context, args map[string]any) (string, error) {
	extra := stringArg(args, "extra")
	if extra == "" {
		return "What would you like to add?", nil
	}
	s.order.Extras = append(s.order.Extras, extra)
	return "Added. Anything else?", nil
}

func (s *coffeeOrderState) recordName(_ context.Context, args map[string]any) (string, error) {
	s.order.Name = stringArg(args, "name")
	s.waitingFor = ""
	return "Thanks! Should I save your order?", nil
}

func (s *coffeeOrderState) saveOrder(_ context.Context, _ map[string]any) (string, error) {
	filename, err := s.store.Save(s.order)
	if err != nil {
		log.Printf("save order failed: %v", err)
		return "Sorry, I could not save your order. Please try again.", nil
	}
	return fmt.Sprintf("Saved your order as %s!", strings.TrimSuffix(filename, ".json")), nil
}
