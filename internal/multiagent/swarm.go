package multiagent

import "fmt"

// ErrCyclicDependency is returned when a swarm's DependsOn graph has a
// cycle and therefore no valid execution order.
type ErrCyclicDependency struct {
	AgentID string
}

func (e *ErrCyclicDependency) Error() string {
	return fmt.Sprintf("multiagent: cyclic dependency involving agent %q", e.AgentID)
}

// SwarmPlan is the resolved execution order for a set of agents
// participating in swarm mode: a sequence of "waves", each a set of
// agent IDs whose dependencies are all satisfied by prior waves and
// which can therefore run concurrently with each other.
type SwarmPlan struct {
	Waves [][]string
}

// PlanSwarm performs a Kahn's-algorithm topological sort over the
// registry's DependsOn edges, grouping agents with no remaining
// unsatisfied dependency into the same wave. Agents not referencing
// SwarmRoleWorker/SwarmRoleCoordinator are excluded — swarm planning
// only concerns agents that opted in.
func (r *Registry) PlanSwarm() (SwarmPlan, error) {
	participants := make(map[string]AgentDefinition)
	for id, a := range r.agents {
		if a.SwarmRole != SwarmRoleNone {
			participants[id] = a
		}
	}

	remaining := make(map[string][]string, len(participants))
	for id, a := range participants {
		var deps []string
		for _, d := range a.DependsOn {
			if _, ok := participants[d]; ok {
				deps = append(deps, d)
			}
		}
		remaining[id] = deps
	}

	var plan SwarmPlan
	done := make(map[string]bool, len(participants))
	for len(done) < len(participants) {
		var wave []string
		for id, deps := range remaining {
			if done[id] {
				continue
			}
			ready := true
			for _, d := range deps {
				if !done[d] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			for id := range remaining {
				if !done[id] {
					return SwarmPlan{}, &ErrCyclicDependency{AgentID: id}
				}
			}
			break
		}
		for _, id := range wave {
			done[id] = true
		}
		plan.Waves = append(plan.Waves, wave)
	}
	return plan, nil
}
