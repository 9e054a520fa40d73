package api

import (
	"github.com/projectvak/contracthub/internal/contractservice"
	"github.com/projectvak/contracthub/internal/models"
	"github.com/projectvak/contracthub/internal/push"
)

// ContractDetail is the full contract response type (aliased from the domain layer).
type ContractDetail = contractservice.ContractDetail

// ContractSummary is one item of a list response (aliased from the domain layer).
type ContractSummary = contractservice.ContractSummary

// UpdateContractResponse is returned after a manual edit.
type UpdateContractResponse = contractservice.UpdateResult

// LinkResponse is returned by the link endpoint.
type LinkResponse = contractservice.LinkResult

// PushResponse is returned by the manual push endpoint.
type PushResponse = push.Outcome

// SweepResponse is returned by the sweep endpoint.
type SweepResponse = push.SweepResult

// ContractListResponse wraps contract listings.
type ContractListResponse struct {
	Contracts []ContractSummary `json:"contracts" validate:"required"`
	Total     int               `json:"total" example:"42" validate:"required"`
}

// PropertyListResponse wraps the per-address rollup.
type PropertyListResponse struct {
	Properties []contractservice.Property `json:"properties" validate:"required"`
}

// DocumentSearchResponse wraps document index hits.
type DocumentSearchResponse struct {
	Results []models.IndexEntry `json:"results" validate:"required"`
}
