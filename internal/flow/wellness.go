package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/agent"
	"github.com/MandarSase/AI-3DMODEL-INPUT/internal/store"
)

const wellnessInstructions = `You are a caring wellness companion running a daily check-in.

Conversation flow:
1. Ask for the user's name and use record_name.
2. Use recall_last_checkin to mention how their last visit went.
3. Ask for mood -> energy -> stress -> objectives -> self care.
4. Use record_summary to capture a one line recap.
5. When the user says "save", call save_checkin.

Always end with a question so the user continues speaking.
Keep responses short and friendly.`

// NewWellness builds the wellness check-in flow around a fresh entry.
func NewWellness(checkins *store.CheckInStore) *Flow {
	return newWellness(checkins, time.Now)
}

func newWellness(checkins *store.CheckInStore, now func() time.Time) *Flow {
	st := &wellnessState{
		store:      checkins,
		entry:      store.NewCheckIn(),
		now:        now,
		waitingFor: "name",
	}
	return &Flow{
		Name:         "wellness",
		Greeting:     "Welcome back! How are you feeling today?",
		Instructions: wellnessInstructions,
		Tools: []agent.Tool{
			{
				Name:        "record_name",
				Description: "Record the user's name.",
				Parameters: objectSchema([]string{"name"}, map[string]any{
					"name": stringParam("The user's name."),
				}),
				Handler: st.recordName,
			},
			{
				Name:        "recall_last_checkin",
				Description: "Look up the user's most recent check-in. Call after recording their name.",
				Parameters:  objectSchema(nil, map[string]any{}),
				Handler:     st.recallLastCheckIn,
			},
			{
				Name:        "record_mood",
				Description: "Record how the user's mood is today.",
				Parameters: objectSchema([]string{"mood"}, map[string]any{
					"mood": stringParam("The mood in the user's own words."),
				}),
				Handler: st.recordMood,
			},
			{
				Name:        "record_energy",
				Description: "Record the user's energy level.",
				Parameters: objectSchema([]string{"energy"}, map[string]any{
					"energy": stringParam("The energy level, e.g. low, okay, high."),
				}),
				Handler: st.recordEnergy,
			},
			{
				Name:        "record_stress",
				Description: "Record how stressed the user feels.",
				Parameters: objectSchema([]string{"stress"}, map[string]any{
					"stress": stringParam("The stress level in the user's own words."),
				}),
				Handler: st.recordStress,
			},
			{
				Name:        "record_objective",
				Description: "Record one objective for the day. Call once per objective.",
				Parameters: objectSchema([]string{"objective"}, map[string]any{
					"objective": stringParam("The objective the user wants to work on."),
				}),
				Handler: st.recordObjective,
			},
			{
				Name:        "record_self_care",
				Description: "Record the self care activity the user plans.",
				Parameters: objectSchema([]string{"activity"}, map[string]any{
					"activity": stringParam("The planned self care activity."),
				}),
				Handler: st.recordSelfCare,
			},
			{
				Name:        "record_summary",
				Description: "Record a one line recap of the check-in.",
				Parameters: objectSchema([]string{"summary"}, map[string]any{
					"summary": stringParam("A short recap of how the user is doing."),
				}),
				Handler: st.recordSummary,
			},
			{
				Name:        "save_checkin",
				Description: "Save the completed check-in. Call when the user asks to save.",
				Parameters:  objectSchema(nil, map[string]any{}),
				Handler:     st.saveCheckIn,
			},
		},
	}
}

type wellnessState struct {
	store      *store.CheckInStore
	entry      *store.CheckIn
	now        func() time.Time
	waitingFor string
}

func (s *wellnessState) recordName(_ context.Context, args map[string]any) (string, error) {
	name := stringArg(args, "name")
	if name == "" {
		return "What name should I put on the check-in?", nil
	}
	s.entry.Name = name
	s.waitingFor = "mood"
	return fmt.Sprintf("Thanks, %s. How is your mood today?", name), nil
}

func (s *wellnessState) recallLastCheckIn(_ context.Context, _ map[string]any) (string, error) {
	if s.entry.Name == "" {
		return "I do not have a name for you yet. What should I call you?", nil
	}
	last, err := s.store.Latest(s.entry.Name)
	if errors.Is(err, store.ErrNotFound) {
		return "It looks like this is your first visit. Welcome!", nil
	}
	if err != nil {
		log.Printf("recall check-in failed: %v", err)
		return "Sorry, I could not look up your last check-in.", nil
	}
	reply := fmt.Sprintf("Last time you felt %s with %s energy", last.Mood, last.Energy)
	if len(last.Objectives) > 0 {
		reply += ", working on " + strings.Join(last.Objectives, ", ")
	}
	return reply + ".", nil
}

func (s *wellnessState) recordMood(_ context.Context, args map[string]any) (string, error) {
	s.entry.Mood = stringArg(args, "mood")
	s.waitingFor = "energy"
	return "Thanks for sharing. How is your energy level?", nil
}

func (s *wellnessState) recordEnergy(_ context.Context, args map[string]any) (string, error) {
	s.entry.Energy = stringArg(args, "energy")
	s.waitingFor = "stress"
	return "Okay. How stressed do you feel?", nil
}

func (s *wellnessState) recordStress(_ context.Context, args map[string]any) (string, error) {
	s.entry.Stress = stringArg(args, "stress")
	s.waitingFor = "objectives"
	return "Understood. What are your objectives for today?", nil
}

func (s *wellnessState) recordObjective(_ context.Context, args map[string]any) (string, error) {
	objective := stringArg(args, "objective")
	if objective == "" {
		return "What would you like to work on?", nil
	}
	s.entry.Objectives = append(s.entry.Objectives, objective)
	return "Added. Any other objectives?", nil
}

func (s *wellnessState) recordSelfCare(_ context.Context, args map[string]any) (string, error) {
	s.entry.SelfCare = stringArg(args, "activity")
	s.waitingFor = "summary"
	return "Good plan. How would you sum up today in one line?", nil
}

func (s *wellnessState) recordSummary(_ context.Context, args map[string]any) (string, error) {
	s.entry.Summary = stringArg(args, "summary")
	s.waitingFor = ""
	return "Noted. Should I save your check-in?", nil
}

func (s *wellnessState) saveCheckIn(_ context.Context, _ map[string]any) (string, error) {
	if err := s.store.Save(s.entry, s.now()); err != nil {
		log.Printf("save check-in failed: %v", err)
		return "Sorry, I could not save your check-in. Please try again.", nil
	}
	return "Saved your check-in. Take care!", nil
}
