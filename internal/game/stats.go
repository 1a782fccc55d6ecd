package game

// PlayerStats summarizes one player's match outcome.
type PlayerStats struct {
	Tag                      int     `json:"tag"`
	Rank                     int     `json:"rank"`
	LastFrameAlive           int     `json:"last_frame_alive"`
	InitResponseTime         int     `json:"init_response_time"`
	AverageFrameResponseTime float64 `json:"average_frame_response_time"`
	TotalShipCount           int     `json:"total_ship_count"`
	DamageDealt              int     `json:"damage_dealt"`
}

// GameStats is the stats block of a finished match. TimeoutTags lists the
// players removed for timing out or erroring, in ascending player order.
type GameStats struct {
	PlayerStatistics []PlayerStats `json:"player_statistics"`
	TimeoutTags      []int         `json:"timeout_tags"`
}
