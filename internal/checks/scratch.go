package checks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/josephlewis42/magpie/internal/submission"
	"github.com/josephlewis42/magpie/internal/tap"
)

// scratchMinimum is one threshold the Scratch2 checker can enforce.
type scratchMinimum struct {
	name  string // settings key
	noun  string // used in the record description
	count func(*scratchProject) int
}

func blocksOf(category opcodeSet) func(*scratchProject) int {
	return func(p *scratchProject) int { return p.countBlocks(category) }
}

var scratchMinimums = []scratchMinimum{
	{"Minimum Hat Blocks", "hat blocks", blocksOf(hatBlocks)},
	{"Minimum Control Blocks", "control blocks", blocksOf(controlBlocks)},
	{"Minimum Custom Blocks", "custom blocks", blocksOf(customBlocks)},
	{"Minimum Events Blocks", "event blocks", blocksOf(eventsBlocks)},
	{"Minimum List Blocks", "list blocks", blocksOf(listBlocks)},
	{"Minimum Looks Blocks", "looks blocks", blocksOf(looksBlocks)},
	{"Minimum Motion Blocks", "motion blocks", blocksOf(motionBlocks)},
	{"Minimum Operator Blocks", "operator blocks", blocksOf(operatorBlocks)},
	{"Minimum Pen Blocks", "pen blocks", blocksOf(penBlocks)},
	{"Minimum Sensing Blocks", "sensing blocks", blocksOf(sensingBlocks)},
	{"Minimum Sound Blocks", "sound blocks", blocksOf(soundBlocks)},
	{"Minimum Variable Blocks", "variable blocks", blocksOf(variableBlocks)},
	{"Minimum Interaction blocks (meta category)", "interaction blocks", blocksOf(interactionBlocks)},
	{"Minimum Blocks", "blocks", func(p *scratchProject) int { return len(p.blocks()) }},
	{"Minimum Costumes", "costumes", (*scratchProject).costumes},
	{"Minimum Sounds", "sounds", (*scratchProject).sounds},
	{"Minimum Scripts", "scripts", func(p *scratchProject) int { return len(p.scripts()) }},
	{"Minimum Sprites", "sprites", (*scratchProject).sprites},
}

// Scratch2 grades .sb2 projects against minimum counts of blocks and assets.
type Scratch2 struct {
	logger *zap.Logger
}

// NewScratch2 creates the Scratch 2 checker.
func NewScratch2(logger *zap.Logger) *Scratch2 {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scratch2{logger: logger}
}

func (s *Scratch2) Info() Info {
	minimums := make(map[string]int, len(scratchMinimums))
	for _, m := range scratchMinimums {
		minimums[m.name] = -1
	}
	return Info{
		Name:     "Scratch2",
		Author:   "Joseph Lewis <joehms22@gmail.com>",
		Version:  "0.1",
		License:  "BSD 3 Clause",
		Defaults: Settings{Enabled: true, Minimums: minimums},
	}
}

func (s *Scratch2) Check(ctx context.Context, doc *submission.Document, settings Settings) ([]*tap.Collector, error) {
	if !settings.Enabled {
		return nil, nil
	}

	var results []*tap.Collector
	for _, path := range doc.Files {
		if !strings.EqualFold(filepath.Ext(path), ".sb2") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		project, err := loadScratchProject(path)
		if err != nil {
			s.logger.Warn("unreadable project", zap.String("file", filepath.Base(path)), zap.Error(err))
			results = append(results, ErrorResult("Scratch2 Checks", err))
			continue
		}

		c := tap.New("Scratch2 Checks")
		for _, m := range scratchMinimums {
			want, ok := settings.Minimums[m.name]
			if !ok || want < 0 {
				continue
			}
			passed, description := minItems(m.noun, m.count(project), want)
			c.Assert(passed, description)
		}
		results = append(results, c)
	}
	return results, nil
}

func minItems(noun string, count, want int) (bool, string) {
	if count >= want {
		return true, fmt.Sprintf("You have %d %s! (You only needed %d)", count, noun, want)
	}
	return false, fmt.Sprintf("You have %d %s, but you need %d.", count, noun, want)
}
