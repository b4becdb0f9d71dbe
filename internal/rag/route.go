package rag

import (
	"context"
	"strings"
	"time"

	"github.com/tuvan0/tuvan/internal/log"
	"github.com/tuvan0/tuvan/internal/metrics"
)

// routeTimeout bounds the model-assisted routing call.
const routeTimeout = 15 * time.Second

// vietnameseEducationKeywords mark questions answerable from the curated
// Vietnamese admissions collection.
var vietnameseEducationKeywords = []string{
	"đại học", "điểm chuẩn", "tuyển sinh", "ngành học", "trường",
	"khoa", "bách khoa", "kinh tế", "luật", "y khoa",
	"xét tuyển", "học phí", "đề án", "chỉ tiêu",
}

// englishEducationKeywords are the English counterparts.
var englishEducationKeywords = []string{
	"university", "college", "admission", "degree", "course",
	"career", "job", "education", "study", "learn",
}

// routerSystemPrompt constrains the model-assisted router to the two valid
// retrieval routes.
const routerSystemPrompt = `You are an expert at routing a user question to a vectorstore or web search.
The vectorstore contains documents about Vietnamese university admissions:
benchmark scores, quotas, majors, tuition fees and enrollment plans.
Use the vectorstore for questions on these topics. Use web search otherwise.
Answer with exactly one word: "vectorstore" or "web_search".`

// routeLabels are the only outputs accepted from the routing model.
var routeLabels = []string{string(RouteVectorStore), string(RouteWebSearch)}

// RouteByKeywords routes a question by keyword lookup. It always returns
// RouteVectorStore or RouteWebSearch and cannot fail: any question without
// an education keyword goes to web search.
func RouteByKeywords(question string) Route {
	q := strings.ToLower(question)
	for _, kw := range vietnameseEducationKeywords {
		if strings.Contains(q, kw) {
			return RouteVectorStore
		}
	}
	for _, kw := range englishEducationKeywords {
		if strings.Contains(q, kw) {
			return RouteVectorStore
		}
	}
	return RouteWebSearch
}

// Router chooses the retrieval route for a question. With a model it makes a
// single constrained classification call; on any failure it falls open to
// the keyword router. Route never returns an error.
type Router struct {
	model   ModelClient
	metrics *metrics.Collector
	logger  log.Logger
}

// NewRouter creates a router. model may be nil, in which case only keyword
// routing is available.
func NewRouter(model ModelClient, collector *metrics.Collector, logger log.Logger) *Router {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Router{model: model, metrics: collector, logger: logger}
}

// Route picks the retrieval path. adaptive enables the model-assisted
// classification; non-adaptive requests use keywords directly.
func (r *Router) Route(ctx context.Context, question string, adaptive bool) Route {
	if !adaptive || r.model == nil {
		return RouteByKeywords(question)
	}

	ctx, cancel := context.WithTimeout(ctx, routeTimeout)
	defer cancel()

	label, err := r.model.Classify(ctx, routerSystemPrompt, question, routeLabels)
	if err != nil {
		r.logger.Warn("model routing failed, falling back to keywords", "error", err)
		if r.metrics != nil {
			r.metrics.RecordFailOpen()
		}
		return RouteByKeywords(question)
	}

	return Route(label)
}
