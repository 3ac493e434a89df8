package feed

import (
	"time"

	"novelrank/pkg/models"
)

const (
	EventWelcome         = "welcome"
	EventRefreshFinished = "refresh.finished"
	EventScheduleUpdated = "schedule.updated"
)

type Event struct {
	Type     string                 `json:"type"`
	Summary  *models.RefreshSummary `json:"summary,omitempty"`
	Schedule any                    `json:"schedule,omitempty"`
	Clients  int                    `json:"clients,omitempty"`
	At       time.Time              `json:"at"`
}
