package recovery

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"os/exec"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harrison/pursuit/internal/executor"
	"github.com/harrison/pursuit/internal/models"
)

// Classifier maps errors onto the failure taxonomy. Typed errors are checked
// first; the message is then matched against an ordered pattern table.
type Classifier struct {
	matchers []failureMatcher
}

type failureMatcher struct {
	Type     models.FailureType
	Patterns []*regexp.Regexp
}

// NewClassifier returns a classifier with the default pattern table.
func NewClassifier() *Classifier {
	return &Classifier{
		matchers: []failureMatcher{
			{
				Type: models.FailureRateLimited,
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`rate limit`),
					regexp.MustCompile(`too many requests`),
					regexp.MustCompile(`\b429\b`),
					regexp.MustCompile(`quota exceeded`),
				},
			},
			{
				Type: models.FailurePermissionDenied,
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`permission denied`),
					regexp.MustCompile(`access denied`),
					regexp.MustCompile(`forbidden`),
					regexp.MustCompile(`\b40[13]\b`),
					regexp.MustCompile(`unauthori[sz]ed`),
				},
			},
			{
				Type: models.FailureToolUnavailable,
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`command not found`),
					regexp.MustCompile(`executable file not found`),
					regexp.MustCompile(`no handler registered`),
					regexp.MustCompile(`tool .*unavailable`),
				},
			},
			{
				Type: models.FailureNetworkError,
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`connection`),
					regexp.MustCompile(`\beof\b`),
					regexp.MustCompile(`reset by peer`),
					regexp.MustCompile(`no such host`),
					regexp.MustCompile(`network is unreachable`),
					regexp.MustCompile(`\b50[234]\b`),
				},
			},
			{
				Type: models.FailureParsingError,
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`parse error`),
					regexp.MustCompile(`syntax error`),
					regexp.MustCompile(`invalid character`),
					regexp.MustCompile(`cannot unmarshal`),
					regexp.MustCompile(`malformed`),
				},
			},
			{
				Type: models.FailurePlanningError,
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`cannot resolve reference`),
					regexp.MustCompile(`invalid plan`),
					regexp.MustCompile(`no actions`),
				},
			},
			{
				Type: models.FailureExecutionError,
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`timeout`),
					regexp.MustCompile(`deadline exceeded`),
					regexp.MustCompile(`exit status \d+`),
					regexp.MustCompile(`panicked`),
					regexp.MustCompile(`signal: killed`),
				},
			},
			{
				Type: models.FailureUnknownTransient,
				Patterns: []*regexp.Regexp{
					regexp.MustCompile(`temporar(y|ily)`),
					regexp.MustCompile(`try again`),
					regexp.MustCompile(`unavailable`),
					regexp.MustCompile(`busy`),
				},
			},
		},
	}
}

// temporary is implemented by errors that know whether retrying may help.
type temporary interface {
	Temporary() bool
}

// Classify returns the failure type for err. A nil error classifies as
// UnknownTransient.
func (c *Classifier) Classify(err error) models.FailureType {
	if err == nil {
		return models.FailureUnknownTransient
	}

	switch {
	case executor.IsToolUnavailableError(err), errors.Is(err, exec.ErrNotFound):
		return models.FailureToolUnavailable
	case executor.IsResolutionError(err), executor.IsValidationError(err):
		return models.FailurePlanningError
	case executor.IsTimeoutError(err):
		return models.FailureExecutionError
	case errors.Is(err, fs.ErrPermission):
		return models.FailurePermissionDenied
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.FailureNetworkError
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var yamlErr *yaml.TypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.As(err, &yamlErr) {
		return models.FailureParsingError
	}

	msg := strings.ToLower(strings.TrimSpace(failureText(err)))
	for _, matcher := range c.matchers {
		for _, pattern := range matcher.Patterns {
			if pattern.MatchString(msg) {
				return matcher.Type
			}
		}
	}

	var tmp temporary
	if errors.As(err, &tmp) && tmp.Temporary() {
		return models.FailureUnknownTransient
	}
	return models.FailureUnknownPermanent
}

// failureText returns the text to match against the pattern table. For action
// errors the action id and type are left out so they cannot match a pattern.
func failureText(err error) string {
	var actionErr *executor.ActionError
	if !errors.As(err, &actionErr) {
		return err.Error()
	}
	if actionErr.Err == nil {
		return actionErr.Message
	}
	return actionErr.Message + ": " + actionErr.Err.Error()
}
