// Package storylint validates story content documents before deployment.
package storylint

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/laborio/questing-together/internal/story/content"
)

// Config holds storylint command configuration.
type Config struct {
	Paths []string
}

// ParseConfig parses flags into a Config. Story paths are positional.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return Config{Paths: fs.Args()}, nil
}

// Run validates every document and reports per-file results. It returns an
// error when any document fails, so the command exits non-zero.
func Run(cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if len(cfg.Paths) == 0 {
		return errors.New("at least one story document path is required")
	}

	failed := 0
	for _, path := range cfg.Paths {
		if err := lintFile(path, out); err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed validation", failed, len(cfg.Paths))
	}
	return nil
}

func lintFile(path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	story, err := content.Load(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: ok title=%q scenes=%d combat_actions=%d expected_players=%d\n",
		path, story.Title, len(story.Scenes), len(story.CombatActions), story.ExpectedPlayers)
	return nil
}
