package engine

type Rules struct {
	MinPlayers    int
	MaxPlayers    int
	DurationSec   int
	PointsPerCase int
}

func DefaultRules() Rules {
	return Rules{
		MinPlayers:    2,
		MaxPlayers:    2,
		DurationSec:   300,
		PointsPerCase: 10,
	}
}
