package domain

import "time"

// EngineStatus summarizes the engine for the status endpoint.
type EngineStatus struct {
	Mode          string         `json:"mode"`
	FeedConnected bool           `json:"feed_connected"`
	Uptime        time.Duration  `json:"uptime"`
	Strategy      StrategyStatus `json:"strategy"`
	OpenPaper     int            `json:"open_paper_positions"`
	OpenLive      int            `json:"open_live_positions"`
	TicksSeen     int64          `json:"ticks_seen"`
	TicksDropped  int64          `json:"ticks_dropped"`
}
