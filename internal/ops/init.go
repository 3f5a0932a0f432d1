package ops

import (
	"github.com/hpungsan/wm/internal/errors"
	"github.com/hpungsan/wm/internal/state"
)

// InitOutput contains the result of the Init operation.
type InitOutput struct {
	Root    string `json:"root"`
	Dir     string `json:"dir"`
	Message string `json:"message"`
}

// Init creates the .wm tree. An existing tree is ALREADY_EXISTS.
func Init(layout state.Layout) (*InitOutput, error) {
	if layout.Initialized() {
		return nil, errors.NewAlreadyExists("wm directory", layout.Dir)
	}
	if err := layout.Init(); err != nil {
		return nil, err
	}
	return &InitOutput{
		Root:    layout.Root,
		Dir:     layout.Dir,
		Message: "Initialized .wm/ in " + layout.Root,
	}, nil
}
