package room

import (
	"github.com/DoyleJ11/code-battle-backend/internal/catalog"
	"github.com/DoyleJ11/code-battle-backend/internal/engine"
	pub "github.com/DoyleJ11/code-battle-backend/pkg/types"
)

func (r *Room) snapshot() pub.RoomSnapshot {
	return Snapshot(r.key, r.state)
}

// Snapshot renders s for the wire. Test cases stay on the server.
func Snapshot(key string, s engine.State) pub.RoomSnapshot {
	snap := pub.RoomSnapshot{
		RoomKey:       key,
		Phase:         string(s.Phase),
		BattleStarted: s.BattleStarted(),
		TimeLeft:      s.TimeLeft,
		Players:       make([]pub.PlayerSnapshot, 0, len(s.Players)),
	}
	if s.Winner != "" {
		w := s.Winner
		snap.Winner = &w
	}
	for _, p := range s.Players {
		snap.Players = append(snap.Players, pub.PlayerSnapshot{
			ID:               p.ID,
			Name:             p.Name,
			Code:             p.Code,
			Score:            p.Score,
			TestsPassedCount: p.TestsPassed,
			IsReady:          p.Ready,
		})
	}
	if s.Problem != nil {
		snap.Problem = ProblemSummary(*s.Problem)
	}
	return snap
}

func ProblemSummary(p catalog.Problem) *pub.ProblemSnapshot {
	out := &pub.ProblemSnapshot{
		ID:            p.ID,
		Title:         p.Title,
		Description:   p.Description,
		Difficulty:    string(p.Difficulty),
		StarterCode:   p.StarterCode,
		Examples:      make([]pub.ExampleSnapshot, 0, len(p.Examples)),
		TestCaseCount: len(p.TestCases),
	}
	for _, ex := range p.Examples {
		out.Examples = append(out.Examples, pub.ExampleSnapshot{
			Input:       ex.Input,
			Output:      ex.Output,
			Explanation: ex.Explanation,
		})
	}
	return out
}
