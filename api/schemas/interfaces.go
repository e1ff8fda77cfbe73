package schemas

import (
	"context"

	"github.com/google/uuid"
)

// SourceConnector is an external search or feed provider queried for candidate
// URLs. Implementations map transport failures onto the error taxonomy in
// errors.go so the orchestrator can skip a failing source without aborting
// the run.
type SourceConnector interface {
	// Search returns up to limit candidates for the given keywords.
	Search(ctx context.Context, keywords []string, limit int) ([]SearchCandidate, error)
	// Name returns the stable source identifier, e.g. "newsapi".
	Name() string
}

// TextCompletionProvider abstracts the external text generation service used
// by the custom-field extraction path. Failure is a tagged error
// (ErrRateLimited, ErrAuthFailed, ErrMalformedResponse); callers degrade
// to "field absent" and never abort on it.
type TextCompletionProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LeadStore is the persistence boundary. The pipeline only writes leads and
// optionally consults ExistsByURL as an extra dedup guard against leads
// persisted by a prior run.
type LeadStore interface {
	SaveLead(ctx context.Context, lead *VerifiedLead, configID, userID uuid.UUID) (uuid.UUID, error)
	ExistsByURL(ctx context.Context, url string, userID uuid.UUID) (bool, error)
}
