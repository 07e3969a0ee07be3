package classify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the classifier's verdict for one thought.
type Kind string

const (
	KindProject Kind = "PROJECT"
	KindPerson  Kind = "PERSON"
	KindIdea    Kind = "IDEA"
	KindAdmin   Kind = "ADMIN"
	KindClarify Kind = "CLARIFY"
)

// Result is the structured classification of one raw thought. Exactly
// one metadata pointer is non-nil and it matches Kind; for CLARIFY all
// metadata is nil and ClarificationQuestion carries the question to
// surface to the user.
type Result struct {
	Kind            Kind
	Title           string
	Summary         string
	Intent          string
	Confidence      float64
	Status          string
	Reasoning       string
	RoutingStrategy string

	Project *ProjectData
	Person  *PersonData
	Idea    *IdeaData
	Admin   *AdminData

	ClarificationQuestion string
}

type ProjectData struct {
	Goal       string `json:"goal"`
	Deadline   string `json:"deadline"`
	Priority   string `json:"priority"`
	NextAction string `json:"nextAction"`
}

type PersonData struct {
	Role      string `json:"role"`
	Company   string `json:"company"`
	Relation  string `json:"relation"`
	LastTouch string `json:"lastTouch"`
}

type IdeaData struct {
	Category string `json:"category"`
	Maturity string `json:"maturity"`
	Sparks   string `json:"sparks"`
}

type AdminData struct {
	DueDate   string `json:"dueDate"`
	Urgency   string `json:"urgency"`
	Recurring bool   `json:"recurring"`
}

// wireResult mirrors the raw JSON shape the model produces: a type tag
// with optional metadata siblings. DecodeResult narrows it to the
// tagged Result union.
type wireResult struct {
	Type                  string       `json:"type"`
	Title                 string       `json:"title"`
	Summary               string       `json:"summary"`
	Intent                string       `json:"intent"`
	Confidence            float64      `json:"confidence"`
	Status                string       `json:"status"`
	Reasoning             string       `json:"reasoning"`
	RoutingStrategy       string       `json:"routingStrategy"`
	ProjectData           *ProjectData `json:"projectData"`
	PersonData            *PersonData  `json:"personData"`
	IdeaData              *IdeaData    `json:"ideaData"`
	AdminData             *AdminData   `json:"adminData"`
	ClarificationQuestion string       `json:"clarificationQuestion"`
}

// DecodeResult parses a model response into a Result. The response may
// be wrapped in a Markdown code fence. Only the metadata block matching
// the declared type is kept; mismatched siblings are dropped rather
// than rejected.
func DecodeResult(raw string) (Result, error) {
	cleaned := StripFences(raw)

	var w wireResult
	if err := json.Unmarshal([]byte(cleaned), &w); err != nil {
		return Result{}, fmt.Errorf("parsing classification response: %w", err)
	}

	kind := Kind(strings.ToUpper(strings.TrimSpace(w.Type)))
	switch kind {
	case KindProject, KindPerson, KindIdea, KindAdmin, KindClarify:
	default:
		return Result{}, fmt.Errorf("unknown classification type %q", w.Type)
	}

	r := Result{
		Kind:            kind,
		Title:           w.Title,
		Summary:         w.Summary,
		Intent:          w.Intent,
		Confidence:      clamp01(w.Confidence),
		Status:          w.Status,
		Reasoning:       w.Reasoning,
		RoutingStrategy: w.RoutingStrategy,
	}

	switch kind {
	case KindProject:
		r.Project = w.ProjectData
	case KindPerson:
		r.Person = w.PersonData
	case KindIdea:
		r.Idea = w.IdeaData
	case KindAdmin:
		r.Admin = w.AdminData
	case KindClarify:
		r.ClarificationQuestion = w.ClarificationQuestion
	}

	return r, nil
}

// StripFences removes a wrapping Markdown code fence (``` or ```json)
// from a model response, if present.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
