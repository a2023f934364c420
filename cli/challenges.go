package cli

import (
	"fmt"
	"slices"

	"github.com/wfunc/codechallenge/config"
	"github.com/wfunc/codechallenge/game"
	"github.com/wfunc/codechallenge/game/gomoku"
)

// challenges maps a challenge name to the constructor of its rule engine.
var challenges = map[string]func(cfg *config.Config) (game.Engine, error){
	gomoku.Name: func(cfg *config.Config) (game.Engine, error) {
		return gomoku.New(cfg.Gomoku.Width, cfg.Gomoku.Height)
	},
}

// ChallengeNames returns the available challenges in alphabetical order.
func ChallengeNames() []string {
	names := make([]string, 0, len(challenges))
	for name := range challenges {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewEngine builds the rule engine for a named challenge.
func NewEngine(name string, cfg *config.Config) (game.Engine, error) {
	build, ok := challenges[name]
	if !ok {
		return nil, fmt.Errorf("unknown challenge %q (available: %v)", name, ChallengeNames())
	}
	return build(cfg)
}
