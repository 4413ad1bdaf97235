package main

import (
	"queueforge/pkg/types"
)

// --- API Payloads ---

type OrderRequest struct {
	PlanetID int64  `json:"planet_id"`
	Category string `json:"category"`
	Kind     string `json:"kind"`
	Amount   int    `json:"amount"`
}

type OrderResponse struct {
	Item         types.QueueItem `json:"item"`
	Cost         types.Resources `json:"cost"`
	QueueEndTime int64           `json:"queue_end_time"`
}

type CancelRequest struct {
	PlanetID int64  `json:"planet_id"`
	Category string `json:"category"`
	ItemID   string `json:"item_id"`
}

type CancelResponse struct {
	Item   types.QueueItem `json:"item"`
	Refund types.Resources `json:"refund"`
}

// PlanetHeader is the block above the queues on the overview screen.
type PlanetHeader struct {
	ID               int64  `json:"id"`
	HeaderFilename   string `json:"header_filename"`
	Name             string `json:"name"`
	Diameter         int    `json:"diameter"`
	TempMin          int    `json:"temp_min"`
	TempMax          int    `json:"temp_max"`
	Coordinates      string `json:"coordinates"`
	BuildingCount    int    `json:"building_count"`
	MaxBuildingCount int    `json:"max_building_count"`
}

type OverviewResponse struct {
	Planet                 PlanetHeader              `json:"planet"`
	Resources              types.Resources           `json:"resources"`
	BuildActive            *types.QueueItem          `json:"build_active"`
	BuildQueue             []types.QueueItem         `json:"build_queue"`
	ResearchActive         *types.QueueItem          `json:"research_active"`
	ResearchQueue          []types.QueueItem         `json:"research_queue"`
	ShipActive             *types.QueueItem          `json:"ship_active"`
	ShipQueue              []types.QueueItem         `json:"ship_queue"`
	ShipQueueTimeCountdown int64                     `json:"ship_queue_time_countdown"`
	ServerTime             int64                     `json:"server_time"`
	Stuck                  map[types.Category]string `json:"stuck,omitempty"` // queues whose finished head could not be applied
}

type StatusResponse struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Time     int64  `json:"time"`
	Uptime   string `json:"uptime"`
	Database string `json:"database"`
	Events   string `json:"events"`
}
