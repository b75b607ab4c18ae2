package upstream

// TargetStatus is a point-in-time view of one target, shaped for the
// management wire.
type TargetStatus struct {
	Address  string `json:"address"`
	Weight   int    `json:"weight"`
	Health   string `json:"health"`
	InFlight int64  `json:"in_flight"`
	Failures int64  `json:"failures"`
	Draining bool   `json:"draining,omitempty"`
}

// UpstreamStatus is a point-in-time view of one upstream and its targets.
type UpstreamStatus struct {
	Name     string         `json:"name"`
	Strategy string         `json:"strategy"`
	Targets  []TargetStatus `json:"targets"`
	Draining []TargetStatus `json:"draining,omitempty"`
}

// Status reports every upstream in name order. The counters are read
// without coordination, so the view is consistent per field, not globally.
func (p *Pool) Status() []UpstreamStatus {
	names := p.Names()
	out := make([]UpstreamStatus, 0, len(names))
	for _, name := range names {
		u := p.Upstream(name)
		if u == nil {
			continue
		}
		status := UpstreamStatus{
			Name:     name,
			Strategy: u.Strategy().String(),
		}
		for _, t := range u.Targets() {
			status.Targets = append(status.Targets, targetStatus(t))
		}
		for _, t := range u.DrainingTargets() {
			status.Draining = append(status.Draining, targetStatus(t))
		}
		out = append(out, status)
	}
	return out
}

func targetStatus(t *Target) TargetStatus {
	return TargetStatus{
		Address:  t.Address,
		Weight:   t.Weight(),
		Health:   t.Health().String(),
		InFlight: t.InFlight(),
		Failures: t.Failures(),
		Draining: t.Draining(),
	}
}
