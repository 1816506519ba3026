package validate

import (
	"context"
	"encoding/json"
	"fmt"

	"battlescribe/internal/battle"
	"battlescribe/internal/logging"
	"battlescribe/internal/oracle"
	"battlescribe/internal/prompt"
	"battlescribe/internal/schema"
)

// Semantic runs the judge calls: setup reflection and turn completeness.
type Semantic struct {
	client      oracle.Client
	prompts     *prompt.Set
	structural  *Structural
	temperature float32
}

// NewSemantic creates a judge over client. temperature applies to every
// judge call.
func NewSemantic(client oracle.Client, prompts *prompt.Set, structural *Structural, temperature float32) *Semantic {
	return &Semantic{client: client, prompts: prompts, structural: structural, temperature: temperature}
}

// Setup asks the judge to pass or fail a setup extraction. The judge sees
// the extracted setup, never the transcript.
func (s *Semantic) Setup(ctx context.Context, ex *battle.SetupExtraction, uploadingPlayer string) (Verdict, error) {
	setupJSON, err := json.MarshalIndent(ex.Setup, "", "  ")
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to marshal setup: %w", err)
	}

	system, user, err := s.prompts.Reflect(prompt.ReflectData{
		UploadingPlayer: uploadingPlayer,
		SetupJSON:       string(setupJSON),
		Winner:          ex.Outcome.Winner,
		TurnCount:       len(ex.TurnTexts),
	})
	if err != nil {
		return Verdict{}, err
	}

	resp, err := s.client.Complete(ctx, oracle.Request{
		Stage:       oracle.StageSetupReflect,
		System:      system,
		User:        user,
		Schema:      schema.ReflectionVerdict,
		Temperature: s.temperature,
	})
	if err != nil {
		return Verdict{}, err
	}

	v, err := s.structural.Reflection(resp.Content)
	if err != nil {
		return Verdict{}, err
	}
	logging.Setup("Setup reflection: pass=%v reason=%q", v.Pass, v.Reason)
	return v, nil
}

// Turn asks the judge whether every action in text is present in turn. A
// failing verdict caused only by the duplicated-draw artifact is overturned.
func (s *Semantic) Turn(ctx context.Context, text string, turn *battle.TurnRecord) (CompletenessVerdict, error) {
	turnJSON, err := json.Marshal(turn)
	if err != nil {
		return CompletenessVerdict{}, fmt.Errorf("failed to marshal turn: %w", err)
	}

	system, user, err := s.prompts.Judge(prompt.JudgeData{TurnText: text, TurnJSON: string(turnJSON)})
	if err != nil {
		return CompletenessVerdict{}, err
	}

	resp, err := s.client.Complete(ctx, oracle.Request{
		Stage:       oracle.StageTurnJudge,
		System:      system,
		User:        user,
		Schema:      schema.TurnCompletenessVerdict,
		Temperature: s.temperature,
	})
	if err != nil {
		return CompletenessVerdict{}, err
	}

	v, err := s.structural.Completeness(resp.Content)
	if err != nil {
		return CompletenessVerdict{}, err
	}

	v = CorrectDuplicatedDraw(text, turn, v)
	if v.Corrected {
		logging.Validation("Turn %d: duplicated draw line in log, overriding judge (%v)", turn.TurnNumber, v.MissingActions)
	}
	return v, nil
}
