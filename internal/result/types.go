package result

// TrialMeta records the outcome of one optimization trial.
type TrialMeta struct {
	Study     string             `json:"study"`
	RunID     string             `json:"run_id"`
	Trial     int                `json:"trial"`
	Params    map[string]any     `json:"params"`
	Metrics   map[string]float64 `json:"metrics"`
	Objective float64            `json:"objective"`
	DurationS int                `json:"duration_s"`
	Workspace string             `json:"workspace"`
}
