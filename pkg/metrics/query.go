package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// ModelUsage represents aggregated usage for one model.
type ModelUsage struct {
	Model            string           `json:"model"`
	PromptTokens     int64            `json:"prompt_tokens"`
	CompletionTokens int64            `json:"completion_tokens"`
	TotalTokens      int64            `json:"total_tokens"`
	Calls            map[string]int64 `json:"calls"` // by outcome
}

// QueryService provides methods to query relay metrics from Prometheus.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// GetUsage returns per-model usage. A non-empty modelName restricts the result to that model.
func (q *QueryService) GetUsage(ctx context.Context, modelName string) ([]*ModelUsage, error) {
	selector := ""
	if modelName != "" {
		selector = fmt.Sprintf(`model=%q`, modelName)
	}

	byModel := make(map[string]*ModelUsage)
	get := func(name string) *ModelUsage {
		usage, ok := byModel[name]
		if !ok {
			usage = &ModelUsage{Model: name, Calls: make(map[string]int64)}
			byModel[name] = usage
		}
		return usage
	}

	tokenVec, err := q.vector(ctx, fmt.Sprintf(`sum by (model, type) (%s{%s})`, MetricTokensTotal, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	for _, sample := range tokenVec {
		usage := get(string(sample.Metric["model"]))
		switch sample.Metric["type"] {
		case "prompt":
			usage.PromptTokens = int64(sample.Value)
		case "completion":
			usage.CompletionTokens = int64(sample.Value)
		}
	}

	callVec, err := q.vector(ctx, fmt.Sprintf(`sum by (model, outcome) (%s{%s})`, MetricModelCalls, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query model calls: %w", err)
	}
	for _, sample := range callVec {
		usage := get(string(sample.Metric["model"]))
		usage.Calls[string(sample.Metric["outcome"])] = int64(sample.Value)
	}

	result := make([]*ModelUsage, 0, len(byModel))
	for _, usage := range byModel {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		result = append(result, usage)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Model < result[j].Model })
	return result, nil
}

func (q *QueryService) vector(ctx context.Context, query string) (model.Vector, error) {
	value, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, err //nolint:wrapcheck // Wrapped by caller with query context
	}
	vector, ok := value.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %s", value.Type())
	}
	return vector, nil
}
