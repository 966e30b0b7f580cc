package checks

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
)

type opcodeSet map[string]bool

func newOpcodeSet(opcodes ...string) opcodeSet {
	s := make(opcodeSet, len(opcodes))
	for _, op := range opcodes {
		s[op] = true
	}
	return s
}

// Scratch 2 block categories, keyed by the opcode stored in project.json.
var (
	hatBlocks = newOpcodeSet("whenKeyPressed", "whenClicked", "whenSceneStarts",
		"whenSensorGreaterThan", "whenIReceive", "whenCloned", "procDef", "whenGreenFlag")

	motionBlocks = newOpcodeSet("bounceOffEdge", "changeXposBy:", "changeYposBy:",
		"forward:", "glideSecs:toX:y:elapsed:from:", "gotoSpriteOrMouse:",
		"gotoX:y:", "heading", "heading:", "pointTowards:", "setRotationStyle",
		"turnLeft:", "turnRight:", "xpos", "xpos:", "ypos", "ypos:")

	looksBlocks = newOpcodeSet("backgroundIndex", "changeGraphicEffect:by:",
		"changeSizeBy:", "comeToFront", "costumeIndex", "filterReset",
		"goBackByLayers:", "hide", "lookLike:", "nextCostume", "nextScene",
		"say:", "say:duration:elapsed:from:", "scale", "sceneName",
		"setGraphicEffect:to:", "setSizeTo:", "show", "startScene",
		"startSceneAndWait", "think:", "think:duration:elapsed:from:")

	soundBlocks = newOpcodeSet("changeTempoBy:", "changeVolumeBy:",
		"doPlaySoundAndWait", "instrument:", "noteOn:duration:elapsed:from:",
		"playDrum", "playSound:", "rest:elapsed:from:", "setTempoTo:",
		"setVolumeTo:", "stopAllSounds", "tempo", "volume")

	penBlocks = newOpcodeSet("changePenHueBy:", "changePenShadeBy:",
		"changePenSizeBy:", "clearPenTrails", "penColor:", "penSize:",
		"putPenDown", "putPenUp", "setPenHueTo:", "setPenShadeTo:", "stampCostume")

	listBlocks = newOpcodeSet("append:toList:", "contentsOfList:",
		"deleteLine:ofList:", "getLine:ofList:", "hideList:",
		"insert:at:ofList:", "lineCountOfList:", "list:contains:",
		"setLine:ofList:to:", "showList:")

	variableBlocks = newOpcodeSet("changeVar:by:", "hideVariable:",
		"readVariable", "setVar:to:", "showVariable:")

	eventsBlocks = newOpcodeSet("broadcast:", "doBroadcastAndWait", "whenClicked",
		"whenGreenFlag", "whenIReceive", "whenKeyPressed", "whenSceneStarts",
		"whenSensorGreaterThan")

	controlBlocks = newOpcodeSet("createCloneOf", "deleteClone", "doForever",
		"doIf", "doIfElse", "doRepeat", "doUntil", "doWaitUntil",
		"stopScripts", "wait:elapsed:from:", "whenCloned")

	sensingBlocks = newOpcodeSet("answer", "color:sees:", "distanceTo:",
		"doAsk", "getAttribute:of:", "getUserName", "keyPressed:",
		"mousePressed", "mouseX", "mouseY", "senseVideoMotion",
		"setVideoState", "setVideoTransparency", "soundLevel", "timeAndDate",
		"timer", "timerReset", "timestamp", "touching:", "touchingColor:")

	operatorBlocks = newOpcodeSet("%", "&", "*", "+", "-", "/", "<", "=",
		">", "computeFunction:of:", "concatenate:with:", "letter:of:",
		"not", "randomFrom:to:", "rounded", "stringLength:", "|")

	customBlocks = newOpcodeSet("call", "procDef")

	interactionBlocks = newOpcodeSet("whenClicked", "whenKeyPressed",
		"keyPressed:", "mousePressed", "mouseX", "mouseY")
)

// scratchObject is the part of a stage or sprite the checks look at.
type scratchObject struct {
	Scripts   [][]any `json:"scripts"`
	Costumes  []any   `json:"costumes"`
	Sounds    []any   `json:"sounds"`
	Variables []any   `json:"variables"`
	Lists     []any   `json:"lists"`
}

// scratchProject is a decoded Scratch 2 project.json. The stage is the
// top-level object; sprites are its children.
type scratchProject struct {
	scratchObject
	Children []scratchObject `json:"children"`
}

// loadScratchProject reads project.json out of an .sb2 archive.
func loadScratchProject(path string) (*scratchProject, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer zr.Close()

	f, err := zr.Open("project.json")
	if err != nil {
		return nil, fmt.Errorf("read project.json: %w", err)
	}
	defer f.Close()

	return decodeScratchProject(f)
}

func decodeScratchProject(r io.Reader) (*scratchProject, error) {
	var p scratchProject
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode project.json: %w", err)
	}
	return &p, nil
}

func (p *scratchProject) objects() []scratchObject {
	return append([]scratchObject{p.scratchObject}, p.Children...)
}

func (p *scratchProject) sprites() int { return len(p.Children) }

func (p *scratchProject) count(field func(scratchObject) []any) int {
	n := 0
	for _, o := range p.objects() {
		n += len(field(o))
	}
	return n
}

func (p *scratchProject) costumes() int {
	return p.count(func(o scratchObject) []any { return o.Costumes })
}

func (p *scratchProject) sounds() int {
	return p.count(func(o scratchObject) []any { return o.Sounds })
}

func (p *scratchProject) variables() int {
	return p.count(func(o scratchObject) []any { return o.Variables })
}

func (p *scratchProject) lists() int {
	return p.count(func(o scratchObject) []any { return o.Lists })
}

// scripts returns every script attached to a hat block. A script entry is
// [x, y, [block, ...]].
func (p *scratchProject) scripts() [][]any {
	var out [][]any
	for _, o := range p.objects() {
		for _, entry := range o.Scripts {
			if len(entry) < 3 {
				continue
			}
			blocks, ok := entry[2].([]any)
			if !ok || len(blocks) == 0 {
				continue
			}
			if hatBlocks[opcode(blocks[0])] {
				out = append(out, blocks)
			}
		}
	}
	return out
}

// blocks returns every reachable block, including ones nested in the
// arguments and substacks of other blocks.
func (p *scratchProject) blocks() [][]any {
	var top []any
	for _, script := range p.scripts() {
		top = append(top, script...)
	}
	var found [][]any
	collectBlocks(top, &found)
	return found
}

// collectBlocks walks nested lists; a list whose first element is a string
// is a block.
func collectBlocks(items []any, found *[][]any) {
	for _, item := range items {
		list, ok := item.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		switch list[0].(type) {
		case string:
			*found = append(*found, list)
			collectBlocks(list, found)
		case []any:
			collectBlocks(list, found)
		}
	}
}

func (p *scratchProject) countBlocks(category opcodeSet) int {
	n := 0
	for _, b := range p.blocks() {
		if category[opcode(b)] {
			n++
		}
	}
	return n
}

func opcode(block any) string {
	list, ok := block.([]any)
	if !ok || len(list) == 0 {
		return ""
	}
	s, _ := list[0].(string)
	return s
}
