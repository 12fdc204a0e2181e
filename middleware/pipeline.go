package middleware

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Stage is one step of a request pipeline. It returns the request the next
// stage sees, or an error that ends the pipeline.
type Stage interface {
	Process(w http.ResponseWriter, r *http.Request) (*http.Request, error)
}

// StageFunc adapts a function to a Stage
type StageFunc func(w http.ResponseWriter, r *http.Request) (*http.Request, error)

// Process calls f
func (f StageFunc) Process(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
	return f(w, r)
}

// ErrorHandler writes the response for a stage that short-circuited
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Named labels a stage for logs
func Named(name string, stage Stage) Stage {
	return namedStage{name: name, Stage: stage}
}

type namedStage struct {
	name string
	Stage
}

func (n namedStage) Name() string { return n.name }

func stageName(s Stage) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// Pipeline runs stages in order before a handler. The first stage to return
// an error stops the pipeline; the handler never runs.
type Pipeline struct {
	stages  []Stage
	onError ErrorHandler
	logger  *zap.Logger
}

// NewPipeline creates a pipeline that reports short-circuits through onError
func NewPipeline(onError ErrorHandler, logger *zap.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{
		stages:  append([]Stage(nil), stages...),
		onError: onError,
		logger:  logger,
	}
}

// With returns a new pipeline with stages appended. p is unchanged.
func (p *Pipeline) With(stages ...Stage) *Pipeline {
	combined := make([]Stage, 0, len(p.stages)+len(stages))
	combined = append(combined, p.stages...)
	combined = append(combined, stages...)
	return &Pipeline{stages: combined, onError: p.onError, logger: p.logger}
}

// Then wraps h with the pipeline
func (p *Pipeline) Then(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, stage := range p.stages {
			next, err := stage.Process(w, r)
			if err != nil {
				p.logger.Debug("pipeline short-circuited",
					zap.String("request_id", GetRequestIDFromContext(r.Context())),
					zap.String("stage", stageName(stage)),
					zap.Error(err))
				p.onError(w, r, err)
				return
			}
			if next != nil {
				r = next
			}
		}
		h.ServeHTTP(w, r)
	})
}

// ThenFunc wraps fn with the pipeline
func (p *Pipeline) ThenFunc(fn http.HandlerFunc) http.Handler {
	return p.Then(fn)
}
