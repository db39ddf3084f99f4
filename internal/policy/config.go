package policy

import (
	"fmt"

	"github.com/fyrsmithlabs/checkin/internal/config"
	"github.com/fyrsmithlabs/checkin/internal/logging"
)

// FromConfig builds an Evaluator from the policies section. Policies are
// added in cfg.Order; a policy whose settings leave it with nothing to
// enforce is left out. reader is only needed when secrets scanning is on.
func FromConfig(cfg config.PoliciesConfig, reader ContentReader, logger *logging.Logger) (*Evaluator, error) {
	var policies []Policy

	for _, name := range cfg.Order {
		switch name {
		case NameWorkItems:
			if cfg.RequireWorkItems {
				policies = append(policies, WorkItemsPolicy{})
			}
		case NameComment:
			if cfg.RequireComment {
				policies = append(policies, CommentPolicy{})
			}
		case NameCheckinNotes:
			if len(cfg.RequiredNotes) > 0 {
				policies = append(policies, NotesPolicy{Required: append([]string(nil), cfg.RequiredNotes...)})
			}
		case NameMaxChanges:
			if cfg.MaxChanges > 0 {
				policies = append(policies, MaxChangesPolicy{Max: cfg.MaxChanges})
			}
		case NameForbiddenPaths:
			if len(cfg.ForbiddenPaths) > 0 {
				m, err := NewPathMatcher(cfg.ForbiddenPaths)
				if err != nil {
					return nil, fmt.Errorf("forbidden_paths: %w", err)
				}
				policies = append(policies, ForbiddenPathsPolicy{Matcher: m})
			}
		case NameSecrets:
			if cfg.Secrets.Enabled {
				allowlist, err := LoadAllowlist(cfg.Secrets.Allowlist)
				if err != nil {
					return nil, err
				}
				p, err := NewSecretsPolicy(reader, allowlist)
				if err != nil {
					return nil, err
				}
				policies = append(policies, p)
			}
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
		}
	}

	opts := []Option{WithLogger(logger)}
	if len(cfg.Exclude) > 0 {
		m, err := NewPathMatcher(cfg.Exclude)
		if err != nil {
			return nil, fmt.Errorf("exclude: %w", err)
		}
		opts = append(opts, WithExclude(m))
	}
	return NewEvaluator(policies, opts...), nil
}
