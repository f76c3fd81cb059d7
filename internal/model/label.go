package model

import (
	"fmt"
	"image/color"
	"strings"
)

// Label is a detectable object class.
type Label int

const (
	Person Label = iota
	Bicycle
	Car
	Motorcycle
	Bus
	Truck
	Cat
	Dog
	labelCount
)

// Bucket groups labels for the per-frame counters.
type Bucket string

const (
	BucketPeople   Bucket = "people"
	BucketVehicles Bucket = "vehicles"
	BucketAnimals  Bucket = "animals"
)

type labelInfo struct {
	name   string
	cocoID int
	bucket Bucket
	color  color.RGBA
}

// labelTable must have exactly one row per Label, checked in init.
var labelTable = [...]labelInfo{
	Person:     {"person", 1, BucketPeople, color.RGBA{0, 255, 0, 0}},
	Bicycle:    {"bicycle", 2, BucketVehicles, color.RGBA{255, 255, 0, 0}},
	Car:        {"car", 3, BucketVehicles, color.RGBA{255, 0, 0, 0}},
	Motorcycle: {"motorcycle", 4, BucketVehicles, color.RGBA{255, 128, 0, 0}},
	Bus:        {"bus", 6, BucketVehicles, color.RGBA{128, 0, 255, 0}},
	Truck:      {"truck", 8, BucketVehicles, color.RGBA{0, 128, 255, 0}},
	Cat:        {"cat", 17, BucketAnimals, color.RGBA{255, 0, 255, 0}},
	Dog:        {"dog", 18, BucketAnimals, color.RGBA{0, 255, 255, 0}},
}

func init() {
	if len(labelTable) != int(labelCount) {
		panic(fmt.Sprintf("model: label table has %d rows, want %d", len(labelTable), labelCount))
	}
	for i, info := range labelTable {
		if info.name == "" || info.bucket == "" {
			panic(fmt.Sprintf("model: label %d has no table entry", i))
		}
	}
}

// AllLabels returns every label in declaration order.
func AllLabels() []Label {
	labels := make([]Label, 0, labelCount)
	for l := Label(0); l < labelCount; l++ {
		labels = append(labels, l)
	}
	return labels
}

// Valid reports whether l is a known label.
func (l Label) Valid() bool {
	return l >= 0 && l < labelCount
}

func (l Label) String() string {
	if !l.Valid() {
		return fmt.Sprintf("label(%d)", int(l))
	}
	return labelTable[l].name
}

// Title returns the capitalized display name, e.g. "Person".
func (l Label) Title() string {
	name := l.String()
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// Color is the box color used when drawing this label.
func (l Label) Color() color.RGBA {
	if !l.Valid() {
		return color.RGBA{255, 255, 255, 0}
	}
	return labelTable[l].color
}

// Bucket returns the counter group of the label.
func (l Label) Bucket() Bucket {
	if !l.Valid() {
		return ""
	}
	return labelTable[l].bucket
}

// COCOID is the class id produced by the SSD COCO model for this label.
func (l Label) COCOID() int {
	if !l.Valid() {
		return -1
	}
	return labelTable[l].cocoID
}

// LabelFromCOCO maps a model class id to a label.
func LabelFromCOCO(id int) (Label, bool) {
	for l, info := range labelTable {
		if info.cocoID == id {
			return Label(l), true
		}
	}
	return 0, false
}

// ParseLabel resolves a case-insensitive label name.
func ParseLabel(name string) (Label, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for l, info := range labelTable {
		if info.name == name {
			return Label(l), true
		}
	}
	return 0, false
}

// ParseLabels resolves names, returning unknown ones separately.
func ParseLabels(names []string) ([]Label, []string) {
	var labels []Label
	var unknown []string
	seen := make(map[Label]bool)
	for _, part := range names {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		l, ok := ParseLabel(part)
		if !ok {
			unknown = append(unknown, part)
			continue
		}
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	return labels, unknown
}

// MarshalText encodes the label by name.
func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("model: invalid label %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText decodes a label name.
func (l *Label) UnmarshalText(text []byte) error {
	parsed, ok := ParseLabel(string(text))
	if !ok {
		return fmt.Errorf("model: unknown label %q", string(text))
	}
	*l = parsed
	return nil
}
