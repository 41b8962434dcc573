package model

import "math"

type LoyaltyLevel struct {
	Name  string `json:"name"`
	Min   int64  `json:"min"`
	Max   int64  `json:"max"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

var loyaltyLevels = []LoyaltyLevel{
	{Name: "Cadete Espacial", Min: 0, Max: 20, Color: "#64b5f6", Icon: "🚀"},
	{Name: "Piloto Lunar", Min: 21, Max: 100, Color: "#7986cb", Icon: "🌙"},
	{Name: "Comandante Galáctico", Min: 101, Max: 500, Color: "#9575cd", Icon: "🪐"},
	{Name: "Interstellar", Min: 501, Max: math.MaxInt64, Color: "#e040fb", Icon: "✨"},
}

// LevelFor returns the tier a balance falls into. Negative balances map to the first tier.
func LevelFor(points int64) LoyaltyLevel {
	for _, l := range loyaltyLevels {
		if points >= l.Min && points <= l.Max {
			return l
		}
	}
	return loyaltyLevels[0]
}
