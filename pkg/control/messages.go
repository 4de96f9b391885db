package control

import (
	"github.com/core-tools/hsu-launchpad/pkg/domain"
)

type empty struct{}

type systemRequest struct {
	ApplicationID string `json:"applicationId"`
	SystemID      string `json:"systemId"`
}

type applicationRequest struct {
	ApplicationID string `json:"applicationId,omitempty"`
	Name          string `json:"name,omitempty"`
	Directory     string `json:"directory,omitempty"`
}

type systemUpsertRequest struct {
	ApplicationID string        `json:"applicationId"`
	System        domain.System `json:"system"`
}

type historyRequest struct {
	SystemID string `json:"systemId"`
	Limit    int    `json:"limit"`
}

type statusResponse struct {
	Processes []domain.ProcessInfo `json:"processes"`
}

type historyResponse struct {
	Runs []domain.RunRecord `json:"runs"`
}

type applicationsResponse struct {
	Applications []domain.Application `json:"applications"`
}
