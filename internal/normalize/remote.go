package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds one completion call.
const DefaultTimeout = 30 * time.Second

// Completer sends one prompt to a language model and returns its text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Fallback reasons, logged when the heuristic path is taken.
const (
	ReasonNoCredential  = "missing credential"
	ReasonAPIError      = "api error"
	ReasonMalformed     = "malformed completion"
	ReasonCountMismatch = "count mismatch"
)

var errCountMismatch = errors.New("record count does not match row count")

// RemoteNormalizer asks a Completer to normalize the batch and falls back to
// Heuristic with the full input on any failure. It makes one attempt only.
type RemoteNormalizer struct {
	completer Completer
	timeout   time.Duration
	log       zerolog.Logger
}

var _ Normalizer = (*RemoteNormalizer)(nil)

// NewRemoteNormalizer returns a normalizer using c. A nil c means no
// credential is configured and every call falls back.
func NewRemoteNormalizer(c Completer, timeout time.Duration, log zerolog.Logger) *RemoteNormalizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RemoteNormalizer{completer: c, timeout: timeout, log: log}
}

// Normalize implements Normalizer.
func (n *RemoteNormalizer) Normalize(ctx context.Context, rows []domain.RawRow, year string) []domain.Expense {
	if len(rows) == 0 {
		return []domain.Expense{}
	}
	records, reason, err := n.remote(ctx, rows, year)
	if err != nil {
		n.log.Warn().Err(err).Str("reason", reason).Int("rows", len(rows)).Msg("falling back to heuristic normalization")
		return Heuristic(rows, year)
	}
	n.log.Debug().Int("rows", len(rows)).Msg("normalized remotely")
	return records
}

func (n *RemoteNormalizer) remote(ctx context.Context, rows []domain.RawRow, year string) ([]domain.Expense, string, error) {
	if n.completer == nil {
		return nil, ReasonNoCredential, errors.New("no completer configured")
	}

	prompt, err := buildPrompt(rows, year)
	if err != nil {
		return nil, ReasonMalformed, err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	text, err := n.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, ReasonAPIError, fmt.Errorf("Normalize: completion: %w", err)
	}

	records, err := parseCompletion(text)
	if err != nil {
		return nil, ReasonMalformed, fmt.Errorf("Normalize: %w", err)
	}
	if len(records) != len(rows) {
		return nil, ReasonCountMismatch, fmt.Errorf("Normalize: %w: got %d, want %d", errCountMismatch, len(records), len(rows))
	}
	return records, "", nil
}

var requiredFields = []string{"date", "category", "description", "amount"}

// parseCompletion decodes the model output. One bad element rejects the
// whole array.
func parseCompletion(text string) ([]domain.Expense, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleanModelJSON(text)), &items); err != nil {
		return nil, fmt.Errorf("parseCompletion: not a JSON array of objects: %w", err)
	}

	out := make([]domain.Expense, 0, len(items))
	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("parseCompletion: element %d is null", i)
		}
		for _, f := range requiredFields {
			raw, ok := item[f]
			if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
				return nil, fmt.Errorf("parseCompletion: element %d: missing %q", i, f)
			}
		}

		var e domain.Expense
		if err := json.Unmarshal(item["date"], &e.Date); err != nil {
			return nil, fmt.Errorf("parseCompletion: element %d: date: %w", i, err)
		}
		if err := json.Unmarshal(item["category"], &e.Category); err != nil {
			return nil, fmt.Errorf("parseCompletion: element %d: category: %w", i, err)
		}
		if err := json.Unmarshal(item["description"], &e.Description); err != nil {
			return nil, fmt.Errorf("parseCompletion: element %d: description: %w", i, err)
		}
		if err := json.Unmarshal(item["amount"], &e.Amount); err != nil {
			return nil, fmt.Errorf("parseCompletion: element %d: amount: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}
