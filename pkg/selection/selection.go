// Package selection decides which branches of an input tree are carried into
// an output tree.
//
// Rules are read top to bottom, one per line:
//
//	# comment
//	drop *
//	keep Jet_*
//	keep run
//
// A branch is kept unless the last rule whose glob pattern matches its name
// is a drop rule.
package selection

import (
	"bufio"
	"io"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
	"github.com/ajitpratap0/nebula-ntuple/pkg/logger"
	"github.com/ajitpratap0/nebula-ntuple/pkg/rowstore"
)

// Action is what a rule does to a matching branch.
type Action string

const (
	Keep Action = "keep"
	Drop Action = "drop"
)

// Rule applies Action to every branch whose name matches Pattern.
type Rule struct {
	Action  Action
	Pattern string
}

// Selection is an ordered list of keep/drop rules.
type Selection struct {
	rules []Rule
}

// New validates rules and returns a selection.
func New(rules ...Rule) (*Selection, error) {
	for _, r := range rules {
		if r.Action != Keep && r.Action != Drop {
			return nil, errors.Newf(errors.ErrorTypeConfig, "unknown selection action %q", r.Action)
		}
		if _, err := path.Match(r.Pattern, ""); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "bad selection pattern").WithDetail("pattern", r.Pattern)
		}
	}
	return &Selection{rules: rules}, nil
}

// Parse reads rules from r.
func Parse(r io.Reader) (*Selection, error) {
	var rules []Rule
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, errors.Newf(errors.ErrorTypeConfig, "selection line %d: want \"keep|drop PATTERN\", got %q", line, text)
		}
		rules = append(rules, Rule{Action: Action(strings.ToLower(fields[0])), Pattern: fields[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "read selection rules")
	}
	return New(rules...)
}

// Load reads rules from a file.
func Load(filename string) (*Selection, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "open selection file").WithDetail("file", filename)
	}
	defer f.Close()
	return Parse(f)
}

// Rules returns a copy of the rules.
func (s *Selection) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// Keeps reports whether a branch named name is kept.
func (s *Selection) Keeps(name string) bool {
	keep := true
	for _, r := range s.rules {
		if ok, _ := path.Match(r.Pattern, name); ok {
			keep = r.Action == Keep
		}
	}
	return keep
}

// Apply sets the status of every branch of tree. It returns the number of
// branches kept.
func (s *Selection) Apply(tree *rowstore.Tree) (int, error) {
	kept := 0
	for _, b := range tree.Branches() {
		keep := s.Keeps(b.Name())
		if err := tree.SetBranchStatus(b.Name(), keep); err != nil {
			return kept, err
		}
		if keep {
			kept++
		}
	}
	logger.Debug("branch selection applied",
		logger.Tree(tree.Name()),
		zap.Int("kept", kept),
		zap.Int("total", len(tree.Branches())))
	return kept, nil
}
