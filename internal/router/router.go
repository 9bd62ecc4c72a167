// Package router provides the decision routing collaborator: fixed threshold
// rules mapping a predicted score to an action and urgency.
package router

import (
	"context"

	"arbagent/internal/models"
)

// Context carries the signals the router decides on.
type Context struct {
	PredictedScore float64
	Opportunities  int
}

// Router maps scores to decisions with rule-based thresholds.
type Router struct{}

// New creates the rule-based router.
func New() *Router { return &Router{} }

// Name implements the integration lifecycle contract.
func (r *Router) Name() string { return "router" }

func (r *Router) Initialize(ctx context.Context) error  { return nil }
func (r *Router) HealthCheck(ctx context.Context) error { return nil }
func (r *Router) Shutdown(ctx context.Context) error    { return nil }

// Decide maps the top candidate's score to a decision.
func (r *Router) Decide(ctx context.Context, dc Context) (models.Decision, error) {
	if err := ctx.Err(); err != nil {
		return models.Decision{}, err
	}
	switch {
	case dc.PredictedScore >= models.AnomalyScore:
		return models.Decision{Action: models.DecideExecuteAndAlert, Urgency: "critical", Reason: "Anomaly detected"}, nil
	case dc.PredictedScore >= models.ActionableScore:
		return models.Decision{Action: models.DecideExecute, Urgency: "high", Reason: "Strong opportunity"}, nil
	case dc.PredictedScore >= 0.5:
		return models.Decision{Action: models.DecideMonitor, Urgency: "medium", Reason: "Moderate signal"}, nil
	default:
		return models.Decision{Action: models.DecideSkip, Urgency: "low", Reason: "Below threshold"}, nil
	}
}

// Route describes where a data type should flow next.
type Route struct {
	Destination string `json:"destination"`
	Priority    string `json:"priority"`
	Pipeline    string `json:"pipeline"`
}

var routingTable = map[string]Route{
	"market_data":        {Destination: "graphstore", Priority: "high", Pipeline: "analysis"},
	"sentiment":          {Destination: "scorer", Priority: "medium", Pipeline: "prediction"},
	"visual_pattern":     {Destination: "graphstore", Priority: "high", Pipeline: "correlation"},
	"economic_indicator": {Destination: "graphstore", Priority: "low", Pipeline: "enrichment"},
	"trade_result":       {Destination: "ledger", Priority: "high", Pipeline: "accounting"},
}

// RouteData classifies a data type into its processing route.
func (r *Router) RouteData(dataType string) Route {
	if route, ok := routingTable[dataType]; ok {
		return route
	}
	return Route{Destination: "graphstore", Priority: "low", Pipeline: "default"}
}
