package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownSetting is returned by Set for a name outside Settable.
	ErrUnknownSetting = errors.New("pipeline: unknown setting")
	// ErrBadValue is returned by Set for NaN or infinite values.
	ErrBadValue = errors.New("pipeline: invalid setting value")
)

// Settable lists the settings that accept an absolute value.
var Settable = []string{"brightness", "contrast", "gamma", "sensitivity"}

// Command is one control-surface action.
type Command int

const (
	CmdNone Command = iota
	CmdCycleMode
	CmdToggleMask
	CmdSensitivityUp
	CmdSensitivityDown
	CmdBrightnessUp
	CmdBrightnessDown
	CmdContrastUp
	CmdContrastDown
	CmdGammaUp
	CmdGammaDown
	CmdToggleSound
	CmdToggleNotify
	CmdToggleFastMode
	CmdToggleTracking
	CmdToggleHelp
	CmdQuit
)

type commandInfo struct {
	name string
	keys []rune
	help string
}

var commands = map[Command]commandInfo{
	CmdCycleMode:       {"mode", []rune{'n'}, "n  vision mode"},
	CmdToggleMask:      {"mask", []rune{'m'}, "m  show motion mask"},
	CmdSensitivityUp:   {"sensitivity-up", []rune{'+', '='}, "+/- sensitivity"},
	CmdSensitivityDown: {"sensitivity-down", []rune{'-', '_'}, ""},
	CmdBrightnessUp:    {"brightness-up", []rune{'i'}, "i/k brightness"},
	CmdBrightnessDown:  {"brightness-down", []rune{'k'}, ""},
	CmdContrastUp:      {"contrast-up", []rune{'l'}, "l/j contrast"},
	CmdContrastDown:    {"contrast-down", []rune{'j'}, ""},
	CmdGammaUp:         {"gamma-up", []rune{'o'}, "o/u gamma"},
	CmdGammaDown:       {"gamma-down", []rune{'u'}, ""},
	CmdToggleSound:     {"sound", []rune{'b'}, "b  alert sound"},
	CmdToggleNotify:    {"notify", []rune{'t'}, "t  notifications"},
	CmdToggleFastMode:  {"fast", []rune{'f'}, "f  fast mode"},
	CmdToggleTracking:  {"tracking", []rune{'r'}, "r  object tracking"},
	CmdToggleHelp:      {"help", []rune{'h'}, "h  help"},
	CmdQuit:            {"quit", []rune{'q', 27}, "q  quit"},
}

var (
	byKey  = make(map[rune]Command)
	byName = make(map[string]Command)
)

func init() {
	for cmd, info := range commands {
		byName[info.name] = cmd
		for _, k := range info.keys {
			if prev, dup := byKey[k]; dup {
				panic(fmt.Sprintf("pipeline: key %q bound to %v and %v", k, prev, cmd))
			}
			byKey[k] = cmd
		}
	}
}

func (c Command) String() string {
	if info, ok := commands[c]; ok {
		return info.name
	}
	return "none"
}

// CommandForKey maps a key code from the display to a command.
func CommandForKey(key int) Command {
	if key < 0 {
		return CmdNone
	}
	if cmd, ok := byKey[rune(key&0xff)]; ok {
		return cmd
	}
	return CmdNone
}

// ParseCommand resolves a command by name.
func ParseCommand(name string) (Command, bool) {
	cmd, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	return cmd, ok
}

// CommandNames lists every command name.
func CommandNames() []string {
	names := make([]string, 0, len(commands))
	for c := CmdCycleMode; c <= CmdQuit; c++ {
		names = append(names, commands[c].name)
	}
	return names
}

// HelpLines is the key map shown by the help overlay.
func HelpLines() []string {
	var lines []string
	for c := CmdCycleMode; c <= CmdQuit; c++ {
		if h := commands[c].help; h != "" {
			lines = append(lines, h)
		}
	}
	return lines
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// Apply mutates the state for cmd and returns the status message it set.
func (st *State) Apply(cmd Command, now time.Time) string {
	var slot NoticeSlot
	var msg string

	switch cmd {
	case CmdCycleMode:
		slot, msg = NoticeMode, "Mode: "+st.NextMode().String()
	case CmdToggleMask:
		slot, msg = NoticeMask, "Mask view: "+onOff(st.toggle(&st.s.ShowMask))
	case CmdSensitivityUp, CmdSensitivityDown:
		step := SensitivityStep
		if cmd == CmdSensitivityDown {
			step = -step
		}
		slot, msg = NoticeAdjust, fmt.Sprintf("Sensitivity: %d", st.AdjustSensitivity(step))
	case CmdBrightnessUp, CmdBrightnessDown:
		slot, msg = NoticeAdjust, fmt.Sprintf("Brightness: %.1f", st.AdjustBrightness(signed(cmd == CmdBrightnessUp)))
	case CmdContrastUp, CmdContrastDown:
		slot, msg = NoticeAdjust, fmt.Sprintf("Contrast: %.1f", st.AdjustContrast(signed(cmd == CmdContrastUp)))
	case CmdGammaUp, CmdGammaDown:
		slot, msg = NoticeAdjust, fmt.Sprintf("Gamma: %.1f", st.AdjustGamma(signed(cmd == CmdGammaUp)))
	case CmdToggleSound:
		slot, msg = NoticeSound, "Sound: "+onOff(st.toggle(&st.s.SoundOn))
	case CmdToggleNotify:
		slot, msg = NoticeNotify, "Notifications: "+onOff(st.toggle(&st.s.NotifyOn))
	case CmdToggleFastMode:
		slot, msg = NoticeFast, "Fast mode: "+onOff(st.toggle(&st.s.FastMode))
	case CmdToggleTracking:
		slot, msg = NoticeTracking, "Tracking: "+onOff(st.toggle(&st.s.Tracking))
	case CmdToggleHelp:
		st.toggle(&st.s.ShowHelp)
		return ""
	case CmdQuit:
		return "Quit"
	default:
		return ""
	}

	st.Notify(slot, msg, now)
	return msg
}

// Set assigns an absolute value to the named setting, clamped into its range,
// and posts the adjust notice. Sensitivity rounds to the nearest integer.
func (st *State) Set(name string, v float64, now time.Time) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", errors.Wrapf(ErrBadValue, "%s=%v", name, v)
	}

	var msg string
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "brightness":
		msg = fmt.Sprintf("Brightness: %.1f", st.SetBrightness(v))
	case "contrast":
		msg = fmt.Sprintf("Contrast: %.1f", st.SetContrast(v))
	case "gamma":
		msg = fmt.Sprintf("Gamma: %.1f", st.SetGamma(v))
	case "sensitivity":
		v = math.Max(SensitivityMin, math.Min(SensitivityMax, math.Round(v)))
		msg = fmt.Sprintf("Sensitivity: %d", st.SetSensitivity(int(v)))
	default:
		return "", errors.Wrap(ErrUnknownSetting, name)
	}

	st.Notify(NoticeAdjust, msg, now)
	return msg, nil
}

func signed(up bool) float64 {
	if up {
		return AdjustStep
	}
	return -AdjustStep
}
