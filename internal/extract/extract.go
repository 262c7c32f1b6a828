// Package extract finds statically known identifier usages in compiled bundle text.
//
// Only literal arguments are recognised. Identifiers built at runtime (variables,
// template literals with substitutions, concatenations) cannot be known at build
// time and are skipped without error.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind selects which family of usages to extract
type Kind string

const (
	KindRoute        Kind = "route"
	KindMessage      Kind = "message"
	KindFlashMessage Kind = "flash-message"
)

// literal matches a single-, double- or back-quoted string argument. Callers
// anchor it on a following `,`, `)` or `}` so "a" + b concatenations are skipped.
const literal = "[\"'`](?P<identifier>[^\"'`]*)[\"'`]"

var (
	// router.make("users.show") and the literal `route` prop of compiled JSX
	routePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\.make\(\s*` + literal + `\s*[,)]`),
		regexp.MustCompile(`["']?\broute["']?\s*:\s*` + literal + `\s*[,}]`),
	}

	// i18n.formatMessage("gardens.index.title")
	messagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\.formatMessage\(\s*` + literal + `\s*[,)]`),
	}

	// flashMessages.has("errors.email"), .get, .hasError, .getError
	flashMessagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\.(?:has|get)(?:Error)?\(\s*` + literal + `\s*[,)]`),
	}
)

// Requirements groups the identifiers found in one piece of source text
type Requirements struct {
	Routes        []string `json:"routes" yaml:"routes"`
	Messages      []string `json:"messages" yaml:"messages"`
	FlashMessages []string `json:"flashMessages" yaml:"flashMessages"`
}

// Extract returns the deduplicated, sorted identifiers of the given kind
func Extract(kind Kind, source string) ([]string, error) {
	switch kind {
	case KindRoute:
		return Routes(source), nil
	case KindMessage:
		return Messages(source), nil
	case KindFlashMessage:
		return FlashMessages(source), nil
	default:
		return nil, fmt.Errorf("unknown identifier kind: %s", kind)
	}
}

// All extracts every identifier kind at once
func All(source string) Requirements {
	return Requirements{
		Routes:        Routes(source),
		Messages:      Messages(source),
		FlashMessages: FlashMessages(source),
	}
}

// Routes extracts route identifiers
func Routes(source string) []string {
	return scan(source, routePatterns)
}

// Messages extracts message identifiers
func Messages(source string) []string {
	return scan(source, messagePatterns)
}

// FlashMessages extracts flash message identifiers
func FlashMessages(source string) []string {
	return scan(source, flashMessagePatterns)
}

func scan(source string, patterns []*regexp.Regexp) []string {
	seen := make(map[string]struct{})

	for _, pattern := range patterns {
		group := pattern.SubexpIndex("identifier")
		for _, match := range pattern.FindAllStringSubmatch(source, -1) {
			identifier := strings.TrimSpace(match[group])
			if identifier == "" || strings.Contains(identifier, "${") {
				continue
			}
			seen[identifier] = struct{}{}
		}
	}

	identifiers := make([]string, 0, len(seen))
	for identifier := range seen {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)

	return identifiers
}
