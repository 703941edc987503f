package http

import (
	"rewriteplan/internal/engine"
)

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates an operation completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates an operation failed.
	StatusError Status = "error"
)

// StrategyInfo describes a registered strategy.
type StrategyInfo struct {
	Name    string   `json:"name"`
	Options []string `json:"options"`
}

// Response represents the standard API response format.
type Response struct {
	Status     Status         `json:"status,omitempty"`
	Error      string         `json:"error,omitempty"`
	Plan       *engine.Plan   `json:"plan,omitempty"`
	Strategies []StrategyInfo `json:"strategies,omitempty"`
	Tables     []string       `json:"tables,omitempty"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewPlanResponse(plan *engine.Plan) Response {
	return Response{Status: StatusSuccess, Plan: plan}
}

func NewStrategiesResponse(strategies []StrategyInfo) Response {
	return Response{Status: StatusSuccess, Strategies: strategies}
}

func NewTablesResponse(tables []string) Response {
	return Response{Status: StatusSuccess, Tables: tables}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}
