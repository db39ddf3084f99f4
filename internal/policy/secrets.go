package policy

import (
	"context"
	"fmt"
	"regexp"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"

	"github.com/fyrsmithlabs/checkin/internal/orchestrator"
)

// ContentReader returns the working copy content of a path.
type ContentReader interface {
	ReadFile(path string) ([]byte, error)
}

// SecretsPolicy scans added and edited files with the gitleaks default
// ruleset. Matched secret values are never included in failure messages.
type SecretsPolicy struct {
	reader    ContentReader
	detector  *detect.Detector
	allowlist *Allowlist
}

// NewSecretsPolicy builds the gitleaks detector once; allowlist may be nil.
func NewSecretsPolicy(reader ContentReader, allowlist *Allowlist) (*SecretsPolicy, error) {
	if reader == nil {
		return nil, ErrNoReader
	}
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("create gitleaks detector: %w", err)
	}
	if allowlist != nil {
		applyAllowlist(&detector.Config, allowlist)
	}
	return &SecretsPolicy{
		reader:    reader,
		detector:  detector,
		allowlist: allowlist,
	}, nil
}

func (*SecretsPolicy) Name() string { return NameSecrets }

func (p *SecretsPolicy) Check(ctx context.Context, req orchestrator.EvaluationRequest) ([]orchestrator.PolicyFailure, error) {
	var failures []orchestrator.PolicyFailure
	for _, c := range req.Selected {
		if c.Kind == orchestrator.ChangeDelete || p.allowlist.skipsPath(c.Path) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := p.reader.ReadFile(c.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", c.Path, err)
		}

		// gitleaks reports 0-based lines
		for _, f := range p.detector.DetectString(string(content)) {
			failures = append(failures, orchestrator.PolicyFailure{
				Policy:  NameSecrets,
				Message: fmt.Sprintf("Possible secret (%s) in %s:%d.", f.RuleID, c.Path, f.StartLine+1),
			})
		}
	}
	return failures, nil
}

// applyAllowlist merges allowlist content patterns into the gitleaks config.
// Patterns were validated by LoadAllowlist.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	if len(allowlist.Regexes) == 0 {
		return
	}
	global := &gitleaksConfig.Allowlist{
		Description: "checkin policy allowlist",
	}
	for _, pattern := range allowlist.Regexes {
		re := regexp.MustCompile(pattern)
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	global.StopWords = append(global.StopWords, allowlist.Regexes...)
	cfg.Allowlists = append(cfg.Allowlists, global)
}
