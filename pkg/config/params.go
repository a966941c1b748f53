package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/google/shlex"
)

// SplitParams tokenizes a parameter string the way a shell would. Quotes
// group words and backslashes escape. A "key=value" pair stays one token.
func SplitParams(params string) ([]string, error) {
	if strings.TrimSpace(params) == "" {
		return nil, nil
	}
	tokens, err := shlex.Split(params)
	if err != nil {
		return nil, fmt.Errorf("%w: params %q: %v", ErrInvalid, params, err)
	}
	return tokens, nil
}

// ParseParams tokenizes params and parses the tokens with fs. Usage output is
// discarded. The remaining positional arguments are returned.
func ParseParams(fs *flag.FlagSet, params string) ([]string, error) {
	tokens, err := SplitParams(params)
	if err != nil {
		return nil, err
	}
	fs.SetOutput(io.Discard)
	if err := fs.Parse(tokens); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, fmt.Errorf("%w: %s: help requested", ErrInvalid, fs.Name())
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, fs.Name(), err)
	}
	return fs.Args(), nil
}

// RequireFlags checks that every named flag was set during the last Parse.
func RequireFlags(fs *flag.FlagSet, names ...string) error {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var missing []string
	for _, name := range names {
		if !set[name] {
			missing = append(missing, "-"+name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s: missing required %s", ErrInvalid, fs.Name(), strings.Join(missing, ", "))
	}
	return nil
}
