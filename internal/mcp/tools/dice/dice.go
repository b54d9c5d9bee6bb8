// Package dice provides the built-in "roll_dice" tool.
//
// The tool is named after dice rather than a generic random number so the
// model reaches for it whenever a roll is called for.
package dice

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"

	"github.com/MrWong99/talewind/internal/mcp/tools"
	"github.com/MrWong99/talewind/pkg/types"
)

// ToolName is the model-facing name of the dice tool.
const ToolName = "roll_dice"

// ErrInvalidSides is returned for a non-positive number of sides. Its text is
// shown to the model verbatim.
var ErrInvalidSides = errors.New("Number of sides must be a positive integer.")

type rollArgs struct {
	NSides int `json:"n_sides"`
}

// Roller draws a number in [1, n]. Tests substitute a deterministic one.
type Roller func(n int) int

// Option configures the dice tool.
type Option func(*roller)

// WithRoller overrides the random source.
func WithRoller(r Roller) Option {
	return func(d *roller) { d.roll = r }
}

type roller struct {
	roll Roller
}

// Tools returns the dice tool.
func Tools(opts ...Option) []tools.Tool {
	d := &roller{roll: func(n int) int { return rand.IntN(n) + 1 }}
	for _, o := range opts {
		o(d)
	}
	return []tools.Tool{{
		Definition: types.ToolDefinition{
			Name:        ToolName,
			Description: "Roll a die with the given number of sides and return the result, an integer between 1 and n_sides.",
			Parameters: tools.Schema(tools.Property{
				Name:        "n_sides",
				Type:        "integer",
				Description: "The number of sides on the die. Must be a positive integer.",
			}),
		},
		Handler: d.handle,
	}}
}

func (d *roller) handle(_ context.Context, args string) (string, error) {
	var a rollArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return "", err
	}
	n, err := Roll(a.NSides, d.roll)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(n), nil
}

// Roll returns a result in [1, sides] drawn with r.
func Roll(sides int, r Roller) (int, error) {
	if sides <= 0 {
		return 0, ErrInvalidSides
	}
	return r(sides), nil
}
