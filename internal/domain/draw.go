package domain

import "time"

// DrawAction says whether a draw command creates or removes an object.
type DrawAction string

const (
	DrawAdd    DrawAction = "add"
	DrawRemove DrawAction = "remove"
)

// DrawKind is the chart object type.
type DrawKind string

const (
	DrawLine      DrawKind = "line"
	DrawRectangle DrawKind = "rectangle"
	DrawArrowUp   DrawKind = "arrow_up"
	DrawArrowDown DrawKind = "arrow_down"
	DrawText      DrawKind = "text"
	DrawBarColor  DrawKind = "bar_color"
)

// DrawCommand is a tagged chart side effect. Commands with the same Tag
// refer to the same object; a later add replaces the earlier one.
type DrawCommand struct {
	Action     DrawAction
	Kind       DrawKind
	Tag        string
	Bar        int
	StartTime  time.Time
	EndTime    time.Time
	StartPrice float64
	EndPrice   float64
	Color      string
	Style      string
	Width      int
	Opacity    int
	Text       string
}

// RemoveCommand builds a removal for a previously drawn tag.
func RemoveCommand(tag string) DrawCommand {
	return DrawCommand{Action: DrawRemove, Tag: tag}
}
