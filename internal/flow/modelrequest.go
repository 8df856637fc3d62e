package flow

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/agent"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/store"
)

const modelRequestInstructions = `You are an AI assistant that collects 3D model requirements.

Conversation flow:
1. Ask user for request description.
2. Use record_initial_request.
3. Ask for model_type -> dimensions -> material -> extras.
4. When user says "save", call save_request.

Always end with a question so the user continues speaking.
Keep responses short and friendly.`

// NewModelRequest builds the 3D model request flow around a fresh record.
func NewModelRequest(requests *store.RequestStore) *Flow {
	st := &modelRequestState{
		store:      requests,
		req:        store.NewModelRequest(),
		waitingFor: "initial",
	}
	return &Flow{
		Name:         "model-request",
		Greeting:     "Hello! What 3D model request would you like to create?",
		Instructions: modelRequestInstructions,
		Tools: []agent.Tool{
			{
				Name:        "record_initial_request",
				Description: "Record the user's initial request description.",
				Parameters: objectSchema([]string{"text"}, map[string]any{
					"text": stringParam("The request description in the user's own words."),
				}),
				Handler: st.recordInitialRequest,
			},
			{
				Name:        "record_model_type",
				Description: "Record what type of 3D model the user wants.",
				Parameters: objectSchema([]string{"model_type"}, map[string]any{
					"model_type": stringParam("The type of 3D model, e.g. figurine, vase, bracket."),
				}),
				Handler: st.recordModelType,
			},
			{
				Name:        "record_dimensions",
				Description: "Record the desired model dimensions.",
				Parameters: objectSchema([]string{"dimensions"}, map[string]any{
					"dimensions": stringParam("The dimensions as the user stated them."),
				}),
				Handler: st.recordDimensions,
			},
			{
				Name:        "record_material",
				Description: "Record the desired material or texture.",
				Parameters: objectSchema([]string{"material"}, map[string]any{
					"material": stringParam("The material or texture for the model."),
				}),
				Handler: st.recordMaterial,
			},
			{
				Name:        "record_extra",
				Description: "Record one extra detail as a labeled key/value pair.",
				Parameters: objectSchema([]string{"key", "value"}, map[string]any{
					"key":   stringParam("Short label for the detail, e.g. color."),
					"value": stringParam("The detail itself."),
				}),
				Handler: st.recordExtra,
			},
			{
				Name:        "save_request",
				Description: "Save the collected request. Call when the user asks to save.",
				Parameters:  objectSchema(nil, map[string]any{}),
				Handler:     st.saveRequest,
			},
		},
	}
}

type modelRequestState struct {
	store      *store.RequestStore
	req        *store.ModelRequest
	waitingFor string
}

func (s *modelRequestState) recordInitialRequest(_ context.Context, args map[string]any) (string, error) {
	s.req.Description = stringArg(args, "text")
	s.waitingFor = "model_type"
	return "Great! What type of 3D model do you want?", nil
}

func (s *modelRequestState) recordModelType(_ context.Context, args map[string]any) (string, error) {
	s.req.ModelType = stringArg(args, "model_type")
	s.waitingFor = "dimensions"
	return "Understood. What dimensions should the model have?", nil
}

func (s *modelRequestState) recordDimensions(_ context.Context, args map[string]any) (string, error) {
	s.req.Dimensions = stringArg(args, "dimensions")
	s.waitingFor = "material"
	return "Got it. What material or texture should be used?", nil
}

func (s *modelRequestState) recordMaterial(_ context.Context, args map[string]any) (string, error) {
	s.req.Material = stringArg(args, "material")
	s.waitingFor = ""
	return "Noted. Any extra details?", nil
}

func (s *modelRequestState) recordExtra(_ context.Context, args map[string]any) (string, error) {
	key, _ := args["key"].(string)
	if strings.TrimSpace(key) == "" {
		return "What should I label that detail?", nil
	}
	value, _ := args["value"].(string)
	s.req.Extras[key] = value
	return "Extra detail added.", nil
}

func (s *modelRequestState) saveRequest(_ context.Context, _ map[string]any) (string, error) {
	id, err := s.store.Save(s.req)
	if err != nil {
		log.Printf("save request failed: %v", err)
		return "Sorry, I could not save your request. Please try again.", nil
	}
	return fmt.Sprintf("Saved your request as %s!", id), nil
}
