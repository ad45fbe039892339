// Package translate defines the language pair driving a translation run.
package translate

import (
	"fmt"
	"strings"
)

// Config is an ordered source→target language pair. It only changes through
// explicit user action; the coordinator restarts the active pipeline when it
// does.
type Config struct {
	// Source is the BCP 47 language tag of the spoken input (e.g., "en", "de").
	Source string

	// Target is the BCP 47 language tag of the synthesized output.
	Target string
}

// Validate reports whether both language tags are present and distinct.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Source) == "" {
		return fmt.Errorf("translate: missing source language")
	}
	if strings.TrimSpace(c.Target) == "" {
		return fmt.Errorf("translate: missing target language")
	}
	if c.Source == c.Target {
		return fmt.Errorf("translate: source and target are both %q", c.Source)
	}
	return nil
}

// Swapped returns the pair with source and target exchanged.
func (c Config) Swapped() Config {
	return Config{Source: c.Target, Target: c.Source}
}

func (c Config) String() string {
	return c.Source + "→" + c.Target
}
