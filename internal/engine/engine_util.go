package engine

import "github.com/DoyleJ11/code-battle-backend/internal/catalog"

func NewState(problem catalog.Problem, rules Rules) State {
	return State{
		Phase:    PhaseLobby,
		Problem:  &problem,
		Players:  []Player{},
		TimeLeft: rules.DurationSec,
		Rules:    rules,
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func FindEvent(events []Event, eventType EventType) (Event, bool) {
	for _, event := range events {
		if event.Type == eventType {
			return event, true
		}
	}
	return Event{}, false
}

func (s State) Player(id string) (Player, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return Player{}, false
	}
	return s.Players[i], true
}

func (s State) BattleStarted() bool { return s.Phase == PhaseActive }
