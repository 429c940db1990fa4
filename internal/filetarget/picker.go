package filetarget

import (
	"context"
	"errors"
)

// ErrCancelled is returned by pickers when the user dismisses the prompt.
// It is always a distinct outcome, never conflated with a failure.
var ErrCancelled = errors.New("filetarget: picker cancelled")

// Picker is the interactive surface that lets the user choose files. The UI
// layer implements it (over HTTP the chosen path arrives in the request);
// tests inject fakes. Picker calls may wait indefinitely for the user.
type Picker interface {
	// PickSaveTarget prompts for a new or existing path to save to,
	// offering suggestedName as the default file name.
	PickSaveTarget(ctx context.Context, suggestedName string) (string, error)

	// PickOpenTarget prompts for an existing file to open.
	PickOpenTarget(ctx context.Context) (string, error)

	// ConfirmDifferentFile asks the user to confirm opening pickedName when
	// it does not match the remembered storedName.
	ConfirmDifferentFile(ctx context.Context, storedName, pickedName string) bool
}

// StaticPicker is a non-interactive Picker around paths already chosen by
// the caller, which is how the HTTP layer supplies user selections.
type StaticPicker struct {
	Path          string
	AcceptRenamed bool
}

func (p StaticPicker) PickSaveTarget(ctx context.Context, suggestedName string) (string, error) {
	if p.Path == "" {
		return "", ErrCancelled
	}
	return p.Path, nil
}

func (p StaticPicker) PickOpenTarget(ctx context.Context) (string, error) {
	if p.Path == "" {
		return "", ErrCancelled
	}
	return p.Path, nil
}

func (p StaticPicker) ConfirmDifferentFile(ctx context.Context, storedName, pickedName string) bool {
	return p.AcceptRenamed
}
