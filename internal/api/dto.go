package api

import (
	"github.com/starford/fmschema/internal/models"
	"github.com/starford/fmschema/internal/pipeline"
	"github.com/starford/fmschema/internal/template"
)

// DocumentListResponse wraps the documents of the last build.
type DocumentListResponse struct {
	Documents []models.Document `json:"documents" validate:"required"`
	Total     int               `json:"total" example:"42" validate:"required"`
}

// BuildResponse is returned by POST /build.
type BuildResponse struct {
	Stats      pipeline.Stats     `json:"stats" validate:"required"`
	Warnings   []pipeline.Warning `json:"warnings"`
	Unresolved []string           `json:"unresolved"`
}

// RenderRequest is the request body for POST /render.
type RenderRequest struct {
	Template     string `json:"template" example:"Configs: {{tools.availableConfigs}}" validate:"required"`
	AllowPartial bool   `json:"allow_partial"`
	UseDefaults  bool   `json:"use_defaults"`
}

// RenderResponse is the outcome of a template resolution.
type RenderResponse struct {
	Status     template.Status `json:"status" example:"success" validate:"required"`
	Text       string          `json:"text" validate:"required"`
	Resolved   []string        `json:"resolved"`
	Unresolved []string        `json:"unresolved"`
	Errors     []string        `json:"errors"`
}

func newRenderResponse(res *template.Result) RenderResponse {
	out := RenderResponse{
		Status:     res.Status,
		Text:       res.Text,
		Resolved:   make([]string, 0, len(res.Resolved)),
		Unresolved: make([]string, 0, len(res.Unresolved)),
		Errors:     make([]string, 0, len(res.Errors)),
	}
	for _, r := range res.Resolved {
		out.Resolved = append(out.Resolved, r.Variable.Placeholder())
	}
	for _, v := range res.Unresolved {
		out.Unresolved = append(out.Unresolved, v.Placeholder())
	}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
