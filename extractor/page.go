package extractor

import (
	"context"
	"errors"
	"fmt"
)

// ErrClickUnsupported is returned by pages that cannot be interacted with.
var ErrClickUnsupported = fmt.Errorf("block click: %w", errors.ErrUnsupported)

// Block is a clickable seating block on a venue map.
type Block struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Index int    `json:"index"`
}

// Page is the DOM surface the strategies read. Implementations must return
// transport-fatal errors typed as such so the cascade can stop.
type Page interface {
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)

	// Labels returns aria-label and title attribute values containing a digit.
	Labels(ctx context.Context) ([]string, error)

	// AnchorContexts finds elements whose own text mentions t and returns,
	// per element, its text followed by the text of up to depth ancestors.
	AnchorContexts(ctx context.Context, t Tier, depth int) ([][]string, error)

	Blocks(ctx context.Context) ([]Block, error)
	ClickBlock(ctx context.Context, b Block) error

	// PriceDisplay returns the text of the selected-block price element.
	PriceDisplay(ctx context.Context) (string, error)

	// VisibleText returns rendered body text, truncated to maxBytes.
	VisibleText(ctx context.Context, maxBytes int) (string, error)
}
