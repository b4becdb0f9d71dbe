package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tuvan0/tuvan/internal/language"
	"github.com/tuvan0/tuvan/internal/log"
	"github.com/tuvan0/tuvan/internal/metrics"
)

var (
	// ErrEmptyQuestion indicates a blank question, rejected before routing.
	ErrEmptyQuestion = errors.New("empty question")

	// ErrStreamAborted indicates the caller's token sink failed mid-stream.
	ErrStreamAborted = errors.New("token stream aborted")
)

// ErrorToken is the single sentinel token emitted when generation fails.
// Generation errors never propagate past the request boundary.
const ErrorToken = "Error: unable to generate a response."

// Request-level deadlines.
const (
	requestTimeout  = 120 * time.Second
	generateTimeout = 90 * time.Second
)

// Request is one answer request.
type Request struct {
	Question   string
	UserID     string
	Collection string // empty uses the configured default
	Adaptive   bool   // enables model-assisted routing and grading
}

// Result is the outcome of one answer request.
type Result struct {
	Answer  string
	Sources []Document
	Route   Route
	// Language is "vi" or "en", from the heuristic detector.
	Language string
	// Grounded reports whether the delivered answer passed (or was exempt
	// from) the groundedness check. False means it was delivered because
	// the retry budget ran out.
	Grounded bool
	Attempts int
	FellBack bool
	Failed   bool
}

// ControllerConfig collects the Controller dependencies.
type ControllerConfig struct {
	Router    *Router
	Grader    *Grader
	Retriever *Retriever
	Model     ModelClient
	Metrics   *metrics.Collector
	Logger    log.Logger

	Collection       string
	TopK             int
	MaxRetries       int
	Temperature      float32
	RetryTemperature float32
}

// Controller drives a request through routing, retrieval, grading,
// generation and groundedness checking. Each request runs on its caller's
// goroutine with its own State; the Controller itself holds no mutable
// request state and is safe for concurrent use.
type Controller struct {
	router    *Router
	grader    *Grader
	retriever *Retriever
	model     ModelClient
	metrics   *metrics.Collector
	logger    log.Logger

	collection       string
	topK             int
	maxRetries       int
	temperature      float32
	retryTemperature float32
}

// NewController creates a Controller, validating required dependencies.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Router == nil {
		return nil, errors.New("nil router")
	}
	if cfg.Grader == nil {
		return nil, errors.New("nil grader")
	}
	if cfg.Retriever == nil {
		return nil, errors.New("nil retriever")
	}
	if cfg.Model == nil {
		return nil, errors.New("nil model client")
	}
	if cfg.Metrics == nil {
		return nil, errors.New("nil metrics collector")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Collection == "" {
		cfg.Collection = "academy"
	}
	if cfg.TopK < 1 {
		cfg.TopK = 5
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	if cfg.RetryTemperature <= 0 {
		cfg.RetryTemperature = 0.3
	}

	return &Controller{
		router:           cfg.Router,
		grader:           cfg.Grader,
		retriever:        cfg.Retriever,
		model:            cfg.Model,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger,
		collection:       cfg.Collection,
		topK:             cfg.TopK,
		maxRetries:       cfg.MaxRetries,
		temperature:      cfg.Temperature,
		retryTemperature: cfg.RetryTemperature,
	}, nil
}

// Answer processes one request. When emit is non-nil every token of the
// final answer is pushed through it; tokens of attempts that end up rejected
// by the groundedness check never reach emit. A nil emit produces only the
// Result (non-streaming callers).
//
// Answer returns an error only for invalid input or an aborted stream.
// Generation failures resolve to a Result carrying the sentinel error token.
func (c *Controller) Answer(ctx context.Context, req Request, emit func(token string) error) (res *Result, retErr error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	start := time.Now()
	tokens := 0
	countingEmit := emit
	if emit != nil {
		countingEmit = func(tok string) error {
			tokens++
			return emit(tok)
		}
	}

	// The request boundary: a panic anywhere below becomes one error token
	// and a failed-request metric, never a crash.
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("request panicked", "user_id", req.UserID, "panic", r)
			if countingEmit != nil {
				_ = countingEmit(ErrorToken)
			}
			res = &Result{Answer: ErrorToken, Failed: true}
			retErr = nil
		}
		route, lang := "", ""
		failed := true
		if res != nil {
			route, lang, failed = string(res.Route), res.Language, res.Failed
		}
		c.metrics.RecordRequest(route, lang, time.Since(start), tokens, failed || retErr != nil)
	}()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	question = language.Normalize(question)
	lang := "en"
	if language.IsVietnamese(question) {
		lang = "vi"
	}

	state := &State{
		Question:   question,
		MaxRetries: c.maxRetries,
	}

	// ROUTING
	state.Route = c.router.Route(ctx, question, req.Adaptive)
	state.Route = c.degradeRoute(state.Route)

	collection := req.Collection
	if collection == "" {
		collection = c.collection
	}

	// RETRIEVING
	switch state.Route {
	case RouteVectorStore:
		state.Documents = c.retriever.VectorSearch(ctx, collection, question, c.topK)
	case RouteWebSearch:
		state.Documents = c.retriever.WebSearch(ctx, question)
	case RouteDirectModel:
		// No evidence; the model answers on its own.
	}

	// GRADING_DOCS: shrink only, order preserved. The overlap heuristic
	// applies to vector retrieval only; web evidence is graded solely by
	// the model in adaptive mode.
	if len(state.Documents) > 0 {
		if req.Adaptive {
			state.Documents = c.grader.GradeDocuments(ctx, question, state.Documents)
		} else if state.Route == RouteVectorStore {
			state.Documents = FilterByOverlap(question, state.Documents)
		}
	}

	// FALLBACK_RETRIEVAL: at most once, only vector -> web, adaptive only.
	// Fallback documents replace the set wholesale and are not re-graded.
	fellBack := false
	if state.Route == RouteVectorStore && len(state.Documents) == 0 &&
		req.Adaptive && c.retriever.HasWeb() {
		c.logger.Info("vector retrieval empty, falling back to web search", "user_id", req.UserID)
		state.Documents = c.retriever.WebSearch(ctx, question)
		state.Route = RouteWebSearch
		fellBack = true
		c.metrics.RecordFallback()
	}

	prompt := BuildPrompt(question, state.Documents, lang == "vi")

	res = &Result{
		Sources:  state.Documents,
		Route:    state.Route,
		Language: lang,
		Grounded: true,
		FellBack: fellBack,
	}

	// GENERATING / GRADING_ANSWER loop.
	temperature := c.temperature
	for attempt := 1; attempt <= state.MaxRetries; attempt++ {
		state.Iteration = attempt
		res.Attempts = attempt

		// The answer check runs only for adaptive requests with evidence
		// and remaining budget; the final attempt is accepted as is.
		willGrade := req.Adaptive && len(state.Documents) > 0 && attempt < state.MaxRetries

		generation, buffered, err := c.generate(ctx, prompt, temperature, willGrade, countingEmit)
		if err != nil {
			if errors.Is(err, ErrStreamAborted) {
				res.Failed = true
				return res, err
			}
			c.logger.Error("generation failed", "user_id", req.UserID, "attempt", attempt, "error", err)
			if countingEmit != nil {
				_ = countingEmit(ErrorToken)
			}
			res.Answer = ErrorToken
			res.Failed = true
			return res, nil
		}
		state.Generation = generation

		if !willGrade {
			break
		}

		if c.grader.CheckGrounded(ctx, state.Documents, generation) {
			res.Grounded = true
			if err := flush(buffered, countingEmit); err != nil {
				res.Failed = true
				return res, fmt.Errorf("%w: %w", ErrStreamAborted, err)
			}
			break
		}

		// Rejected: buffered tokens are dropped, nothing reached the caller.
		c.logger.Info("answer not grounded, regenerating",
			"user_id", req.UserID, "attempt", attempt, "max_retries", state.MaxRetries)
		c.metrics.RecordRetry()
		res.Grounded = false
		temperature = c.retryTemperature
	}

	res.Answer = state.Generation
	return res, nil
}

// degradeRoute downgrades a route whose backend is not configured.
// RouteDirectModel is only ever produced here, never by a router.
func (c *Controller) degradeRoute(route Route) Route {
	switch route {
	case RouteVectorStore:
		if c.retriever.HasVector() {
			return route
		}
		if c.retriever.HasWeb() {
			c.logger.Warn("vector store unavailable, degrading to web search")
			return RouteWebSearch
		}
	case RouteWebSearch:
		if c.retriever.HasWeb() {
			return route
		}
		if c.retriever.HasVector() {
			c.logger.Warn("web search unavailable, degrading to vector store")
			return RouteVectorStore
		}
	case RouteDirectModel:
		return route
	}
	c.logger.Warn("no retrieval backend available, answering directly")
	return RouteDirectModel
}

// generate runs one model attempt. When buffered is true (the attempt may
// still be rejected) tokens are collected and returned instead of being
// emitted; otherwise they stream straight to emit.
func (c *Controller) generate(ctx context.Context, prompt string, temperature float32,
	buffered bool, emit func(string) error) (string, []string, error) {

	genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	if emit == nil {
		text, err := c.model.Stream(genCtx, prompt, temperature, nil)
		return text, nil, err
	}

	if buffered {
		var buf []string
		text, err := c.model.Stream(genCtx, prompt, temperature, func(tok string) error {
			buf = append(buf, tok)
			return nil
		})
		return text, buf, err
	}

	var aborted error
	text, err := c.model.Stream(genCtx, prompt, temperature, func(tok string) error {
		if err := emit(tok); err != nil {
			aborted = err
			return err
		}
		return nil
	})
	if aborted != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrStreamAborted, aborted)
	}
	return text, nil, err
}

// flush delivers buffered tokens of an accepted attempt.
func flush(buffered []string, emit func(string) error) error {
	if emit == nil {
		return nil
	}
	for _, tok := range buffered {
		if err := emit(tok); err != nil {
			return err
		}
	}
	return nil
}
