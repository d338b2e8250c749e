package interfaces

import "context"

// NotebookUploader hands staged files to an external notebook service.
// Authentication is the collaborator's concern.
type NotebookUploader interface {
	// CreateNotebook creates a notebook and returns its ID
	CreateNotebook(ctx context.Context, title string) (string, error)

	// SetSystemPrompt configures the notebook's analyst persona
	SetSystemPrompt(ctx context.Context, notebookID, text string) error

	// AddSource uploads one file into the notebook
	AddSource(ctx context.Context, notebookID, path string) error
}
